package database_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/opsboard/opsboard/internal/platform/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRLSTestDB creates a test database with migrations run as superuser,
// then returns a non-superuser pool (RLS enforced) and the superuser connStr
// for seeding. RLS policies are only enforced for non-superuser connections.
func setupRLSTestDB(t *testing.T) (rlsPool *database.Pool, superConnStr string, cleanup func()) {
	t.Helper()
	ctx := context.Background()

	connStr, containerCleanup := setupPostgres(t)

	err := database.RunMigrations(connStr, "file://../../../migrations")
	require.NoError(t, err)

	superPool, err := database.Connect(ctx, connStr, 2)
	require.NoError(t, err)

	_, err = superPool.Exec(ctx, `
		CREATE ROLE rls_user LOGIN PASSWORD 'rls_pass';
		GRANT USAGE ON SCHEMA public TO rls_user;
		GRANT SELECT, INSERT, UPDATE, DELETE ON ALL TABLES IN SCHEMA public TO rls_user;
	`)
	require.NoError(t, err)
	superPool.Close()

	rlsConnStr := replaceUserInConnStr(t, connStr, "rls_user", "rls_pass")

	pool, err := database.Connect(ctx, rlsConnStr, 5)
	require.NoError(t, err)

	cleanup = func() {
		pool.Close()
		containerCleanup()
	}

	return pool, connStr, cleanup
}

// replaceUserInConnStr swaps the user and password in a postgres connection string.
func replaceUserInConnStr(t *testing.T, connStr, user, password string) string {
	t.Helper()
	u, err := url.Parse(connStr)
	require.NoError(t, err)
	u.User = url.UserPassword(user, password)
	return u.String()
}

// seedTwoCompanies creates two companies, each with one department, one
// user, one task and one audit entry. Must be called with the superuser
// connStr, which bypasses RLS.
func seedTwoCompanies(t *testing.T, superConnStr string) (companyA, companyB string) {
	t.Helper()
	ctx := context.Background()

	pool, err := database.Connect(ctx, superConnStr, 2)
	require.NoError(t, err)
	defer pool.Close()

	seed := func(name string) string {
		var companyID, deptID, userID string
		err := pool.QueryRow(ctx, "INSERT INTO companies (name) VALUES ($1) RETURNING id", name).Scan(&companyID)
		require.NoError(t, err)
		err = pool.QueryRow(ctx,
			"INSERT INTO departments (company_id, name) VALUES ($1, 'Ops') RETURNING id", companyID).Scan(&deptID)
		require.NoError(t, err)
		err = pool.QueryRow(ctx,
			`INSERT INTO users (company_id, department_id, email, password_hash, role)
			 VALUES ($1, $2, $3, 'x', 'owner') RETURNING id`,
			companyID, deptID, name+"@example.com").Scan(&userID)
		require.NoError(t, err)
		_, err = pool.Exec(ctx,
			`INSERT INTO tasks (company_id, department_id, title, assignee_id, created_by_id)
			 VALUES ($1, $2, 'Task', $3, $3)`,
			companyID, deptID, userID)
		require.NoError(t, err)
		_, err = pool.Exec(ctx,
			`INSERT INTO audit_entries (actor_id, company_id, department_id, action, resource_kind)
			 VALUES ($1, $2, $3, 'task.created', 'task')`,
			userID, companyID, deptID)
		require.NoError(t, err)
		return companyID
	}

	return seed("a"), seed("b")
}

func countRows(t *testing.T, ctx context.Context, q database.Querier, table string) int {
	t.Helper()
	var count int
	// Safe: table names are hardcoded constants in test code, not user input.
	err := q.QueryRow(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
	require.NoError(t, err)
	return count
}

func TestRLS_CompanyIsolation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	rlsPool, superConnStr, cleanup := setupRLSTestDB(t)
	defer cleanup()

	companyA, companyB := seedTwoCompanies(t, superConnStr)
	ctx := context.Background()

	tables := []string{"tasks", "audit_entries"}

	for _, table := range tables {
		for _, companyID := range []string{companyA, companyB} {
			t.Run(table+"_sees_only_own", func(t *testing.T) {
				err := database.WithCompanyTx(ctx, rlsPool, companyID, func(ctx context.Context, q database.Querier) error {
					assert.Equal(t, 1, countRows(t, ctx, q, table))
					return nil
				})
				require.NoError(t, err)
			})
		}
	}

	t.Run("no_company_set_sees_nothing", func(t *testing.T) {
		for _, table := range tables {
			assert.Equal(t, 0, countRows(t, ctx, rlsPool, table), table)
		}
	})

	t.Run("audit_entries_are_append_only", func(t *testing.T) {
		err := database.WithCompanyTx(ctx, rlsPool, companyA, func(ctx context.Context, q database.Querier) error {
			tag, execErr := q.Exec(ctx, "DELETE FROM audit_entries")
			require.NoError(t, execErr)
			assert.Equal(t, int64(0), tag.RowsAffected())
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("cannot_write_into_other_company", func(t *testing.T) {
		err := database.WithCompanyTx(ctx, rlsPool, companyA, func(ctx context.Context, q database.Querier) error {
			_, execErr := q.Exec(ctx,
				`UPDATE tasks SET company_id = $1`, companyB)
			return execErr
		})
		assert.Error(t, err)
	})
}
