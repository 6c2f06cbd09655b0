package auth_test

import (
	"context"
	"testing"

	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/platform/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*database.Pool, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("opsboard_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2),
		),
	)
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = database.RunMigrations(connStr, "file://../../migrations")
	require.NoError(t, err)

	pool, err := database.Connect(ctx, connStr, 5)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestStore_RegisterAndLookup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := auth.NewStore(pool)
	ctx := context.Background()

	identity, err := store.Register(ctx, auth.Registration{
		CompanyName:    "Acme",
		DepartmentName: "Operations",
		Email:          "owner@acme.test",
		PasswordHash:   "hash",
		FirstName:      "Ola",
	})
	require.NoError(t, err)
	assert.Equal(t, "owner", identity.Role)
	assert.NotEmpty(t, identity.CompanyID)
	assert.NotEmpty(t, identity.DepartmentID)

	found, hash, err := store.LookupCredentials(ctx, "OWNER@acme.test")
	require.NoError(t, err)
	assert.Equal(t, identity.UserID, found.UserID)
	assert.Equal(t, "hash", hash)

	reloaded, err := store.GetIdentity(ctx, identity.UserID)
	require.NoError(t, err)
	assert.Equal(t, identity.DepartmentID, reloaded.DepartmentID)

	profile, err := store.GetProfile(ctx, identity.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", profile.CompanyName)
	assert.Equal(t, "Operations", profile.DepartmentName)
	assert.Equal(t, "Ola", profile.FirstName)

	_, err = store.Register(ctx, auth.Registration{
		CompanyName:    "Other",
		DepartmentName: "General",
		Email:          "owner@acme.test",
		PasswordHash:   "hash",
	})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	// The failed registration left no orphan company behind
	var companies int
	require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM companies").Scan(&companies))
	assert.Equal(t, 1, companies)
}

func TestStore_UnknownUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := auth.NewStore(pool)
	ctx := context.Background()

	_, _, err := store.LookupCredentials(ctx, "nobody@acme.test")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	_, err = store.GetIdentity(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}
