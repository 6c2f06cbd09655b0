package task

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/opsboard/opsboard/internal/authz"
	"github.com/opsboard/opsboard/internal/platform/database"
)

const taskColumns = `id, title, description, status, priority, category, assignee_id, created_by_id,
	company_id, department_id, due_date, version, created_at, updated_at`

// Store handles task persistence. Every method runs on the caller's
// querier, normally a company-scoped transaction.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.Category,
		&t.AssigneeID, &t.CreatedByID, &t.CompanyID, &t.DepartmentID, &t.DueDate,
		&t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts t and fills in the generated columns.
func (s *Store) Create(ctx context.Context, q database.Querier, t *Task) (*Task, error) {
	created, err := scanTask(q.QueryRow(ctx,
		`INSERT INTO tasks (title, description, status, priority, category, assignee_id, created_by_id,
		                    company_id, department_id, due_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+taskColumns,
		t.Title, t.Description, t.Status, t.Priority, t.Category, t.AssigneeID, t.CreatedByID,
		t.CompanyID, t.DepartmentID, t.DueDate,
	))
	if err != nil {
		return nil, fmt.Errorf("inserting task: %w", err)
	}
	return created, nil
}

// GetByID loads one task. Rows hidden by row-level security read as
// ErrNotFound.
func (s *Store) GetByID(ctx context.Context, q database.Querier, id string) (*Task, error) {
	t, err := scanTask(q.QueryRow(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying task: %w", err)
	}
	return t, nil
}

// Update writes the mutable fields of t if the stored version still equals
// t.Version, bumping the version. A mismatch is ErrVersionConflict.
func (s *Store) Update(ctx context.Context, q database.Querier, t *Task) (*Task, error) {
	updated, err := scanTask(q.QueryRow(ctx,
		`UPDATE tasks
		 SET title = $1, description = $2, status = $3, priority = $4, category = $5,
		     assignee_id = $6, department_id = $7, due_date = $8,
		     version = version + 1, updated_at = now()
		 WHERE id = $9 AND version = $10
		 RETURNING `+taskColumns,
		t.Title, t.Description, t.Status, t.Priority, t.Category,
		t.AssigneeID, t.DepartmentID, t.DueDate, t.ID, t.Version,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("updating task: %w", err)
	}
	return updated, nil
}

// Delete removes a task.
func (s *Store) Delete(ctx context.Context, q database.Querier, id string) error {
	tag, err := q.Exec(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LookupMember loads the ownership of a prospective assignee, or nil when
// no such user exists.
func (s *Store) LookupMember(ctx context.Context, q database.Querier, userID string) (*authz.Member, error) {
	var m authz.Member
	err := q.QueryRow(ctx,
		"SELECT id, company_id, department_id FROM users WHERE id = $1",
		userID,
	).Scan(&m.ID, &m.CompanyID, &m.DepartmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying assignee: %w", err)
	}
	return &m, nil
}

// ListParams narrows a listing. Boundary is mandatory and always ANDed
// first.
type ListParams struct {
	Boundary   authz.Boundary
	Status     *Status
	Priority   *Priority
	AssigneeID *string
	Category   *string
	Limit      int
	Offset     int
}

// List returns one page of tasks, newest first, and the total count.
func (s *Store) List(ctx context.Context, q database.Querier, p ListParams) ([]Task, int, error) {
	conditions, args, argN := buildConditions(p)
	where := strings.Join(conditions, " AND ")

	var total int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM tasks WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting tasks: %w", err)
	}

	sql := fmt.Sprintf("SELECT %s FROM tasks WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d",
		taskColumns, where, argN, argN+1)
	rows, err := q.Query(ctx, sql, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("scanning task: %w", scanErr)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating tasks: %w", err)
	}
	return tasks, total, nil
}

func buildConditions(p ListParams) ([]string, []any, int) {
	var conditions []string
	var args []any
	argN := 1

	clause, value := p.Boundary.Clause(argN)
	conditions = append(conditions, clause)
	args = append(args, value)
	argN++

	if p.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argN))
		args = append(args, *p.Status)
		argN++
	}
	if p.Priority != nil {
		conditions = append(conditions, fmt.Sprintf("priority = $%d", argN))
		args = append(args, *p.Priority)
		argN++
	}
	if p.AssigneeID != nil {
		conditions = append(conditions, fmt.Sprintf("assignee_id = $%d", argN))
		args = append(args, *p.AssigneeID)
		argN++
	}
	if p.Category != nil {
		conditions = append(conditions, fmt.Sprintf("category = $%d", argN))
		args = append(args, *p.Category)
		argN++
	}
	return conditions, args, argN
}
