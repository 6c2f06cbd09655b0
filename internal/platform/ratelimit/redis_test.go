package ratelimit_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opsboard/opsboard/internal/platform/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) (string, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	cleanup := func() {
		_ = container.Terminate(ctx)
	}
	return fmt.Sprintf("%s:%s", host, port.Port()), cleanup
}

func TestRedis_FixedWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	addr, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	client, err := ratelimit.NewRedisClient(ctx, addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	limiter := ratelimit.NewRedis(client, 2, time.Minute)

	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, "login:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := limiter.Allow(ctx, "login:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.True(t, d.ResetAt.After(time.Now()))

	d, err = limiter.Allow(ctx, "login:10.0.0.2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestNewRedisClient_RequiresAddr(t *testing.T) {
	_, err := ratelimit.NewRedisClient(context.Background(), "", "", 0)
	assert.Error(t, err)
}
