package audit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opsboard/opsboard/internal/audit"
	"github.com/opsboard/opsboard/internal/auth"
	"github.com/opsboard/opsboard/internal/authz"
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

	require.NoError(t, database.RunMigrations(connStr, "file://../../migrations"))

	pool, err := database.Connect(ctx, connStr, 5)
	require.NoError(t, err)

	return pool, func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}
}

type seededCompany struct {
	companyID string
	deptA     string
	deptB     string
	owner     string
	admin     string
}

func seedCompany(t *testing.T, pool *database.Pool) seededCompany {
	t.Helper()
	ctx := context.Background()
	var s seededCompany

	require.NoError(t, pool.QueryRow(ctx, "INSERT INTO companies (name) VALUES ('Acme') RETURNING id").Scan(&s.companyID))
	require.NoError(t, pool.QueryRow(ctx,
		"INSERT INTO departments (company_id, name) VALUES ($1, 'Ops') RETURNING id", s.companyID).Scan(&s.deptA))
	require.NoError(t, pool.QueryRow(ctx,
		"INSERT INTO departments (company_id, name) VALUES ($1, 'Sales') RETURNING id", s.companyID).Scan(&s.deptB))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO users (company_id, department_id, email, password_hash, role)
		 VALUES ($1, $2, 'owner@acme.test', 'x', 'owner') RETURNING id`, s.companyID, s.deptA).Scan(&s.owner))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO users (company_id, department_id, email, password_hash, role)
		 VALUES ($1, $2, 'admin@acme.test', 'x', 'admin') RETURNING id`, s.companyID, s.deptB).Scan(&s.admin))
	return s
}

func TestAuditLogs_BoundaryAndPagination(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := seedCompany(t, pool)
	ctx := context.Background()
	store := audit.NewStore()
	recorder := audit.NewRecorder(store)

	owner := &authz.Actor{ID: s.owner, Role: authz.Owner, CompanyID: s.companyID, DepartmentID: s.deptA}
	admin := &authz.Actor{ID: s.admin, Role: authz.Admin, CompanyID: s.companyID, DepartmentID: s.deptB}

	err := database.WithCompanyTx(ctx, pool, s.companyID, func(ctx context.Context, q database.Querier) error {
		for range 3 {
			if err := recorder.Record(ctx, q, audit.ActorEvent(owner, audit.ActionTaskCreated, authz.ResourceTask, "t")); err != nil {
				return err
			}
		}
		return recorder.Record(ctx, q, audit.ActorEvent(admin, audit.ActionTaskDeleted, authz.ResourceTask, "t"))
	})
	require.NoError(t, err)

	h := audit.NewHandler(pool, store, recorder)

	list := func(identity *auth.Identity, query string) map[string]any {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs?"+query, nil)
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
		w := httptest.NewRecorder()
		h.HandleList(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var body map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		return body
	}

	ownerIdentity := &auth.Identity{UserID: s.owner, CompanyID: s.companyID, DepartmentID: s.deptA, Role: "owner"}
	adminIdentity := &auth.Identity{UserID: s.admin, CompanyID: s.companyID, DepartmentID: s.deptB, Role: "admin"}

	body := list(ownerIdentity, "limit=2")
	assert.Equal(t, float64(4), body["total"])
	assert.Len(t, body["logs"], 2)
	assert.Equal(t, float64(2), body["limit"])

	// The owner's listing was itself audited in department A, so the admin
	// of department B still sees only their own entry.
	body = list(adminIdentity, "")
	assert.Equal(t, float64(1), body["total"])

	body = list(ownerIdentity, "action=task.deleted")
	assert.Equal(t, float64(1), body["total"])
}
