package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opsboard/opsboard/internal/authz"
	"github.com/opsboard/opsboard/internal/platform/database"
)

// Entry is a persisted audit record as returned by queries.
type Entry struct {
	ID           uuid.UUID       `json:"id"`
	ActorID      *uuid.UUID      `json:"actor_id"`
	CompanyID    uuid.UUID       `json:"company_id"`
	DepartmentID *uuid.UUID      `json:"department_id"`
	Action       string          `json:"action"`
	ResourceKind string          `json:"resource_kind"`
	ResourceID   string          `json:"resource_id"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Source       string          `json:"source"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Store handles audit event persistence.
type Store struct{}

// NewStore creates an audit Store.
func NewStore() *Store {
	return &Store{}
}

// InsertBatch writes a batch of events to the database.
func (s *Store) InsertBatch(ctx context.Context, db database.Querier, events []Event) error {
	if len(events) == 0 {
		return nil
	}
	sql, args, err := buildBatchInsert(events)
	if err != nil {
		return fmt.Errorf("building batch insert: %w", err)
	}
	_, err = db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("inserting audit events: %w", err)
	}
	return nil
}

// buildBatchInsert constructs a multi-row INSERT statement.
func buildBatchInsert(events []Event) (string, []any, error) {
	const cols = "(actor_id, company_id, department_id, action, resource_kind, resource_id, metadata, source)"
	const width = 8
	var placeholders []string
	var args []any

	for i, e := range events {
		base := i * width
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))

		var metaJSON []byte
		var err error
		if e.Metadata != nil {
			metaJSON, err = json.Marshal(e.Metadata)
			if err != nil {
				return "", nil, fmt.Errorf("marshaling metadata: %w", err)
			}
		}

		source := e.Source
		if source == "" {
			source = "api"
		}

		args = append(args, e.ActorID, e.CompanyID, e.DepartmentID, e.Action, e.ResourceKind, e.ResourceID, metaJSON, source)
	}

	sql := fmt.Sprintf("INSERT INTO audit_entries %s VALUES %s", cols, strings.Join(placeholders, ", "))
	return sql, args, nil
}

// ListParams defines filters for querying audit entries. Boundary is
// mandatory and always ANDed first.
type ListParams struct {
	Boundary     authz.Boundary
	Action       *string
	ResourceKind *string
	ActorID      *uuid.UUID
	After        *time.Time
	Before       *time.Time
	Limit        int
	Offset       int
}

// List returns one page of entries and the total matching count.
func (s *Store) List(ctx context.Context, db database.Querier, p ListParams) ([]Entry, int, error) {
	countSQL, countArgs := buildCountQuery(p)
	var total int
	if err := db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}

	sql, args := buildListQuery(p)
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.CompanyID, &e.DepartmentID, &e.Action,
			&e.ResourceKind, &e.ResourceID, &e.Metadata, &e.Source, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, total, nil
}

// buildConditions renders the WHERE predicates shared by the list and
// count queries, returning the next free placeholder number.
func buildConditions(p ListParams) ([]string, []any, int) {
	var conditions []string
	var args []any
	argN := 1

	clause, value := p.Boundary.Clause(argN)
	conditions = append(conditions, clause)
	args = append(args, value)
	argN++

	if p.Action != nil {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argN))
		args = append(args, *p.Action)
		argN++
	}
	if p.ResourceKind != nil {
		conditions = append(conditions, fmt.Sprintf("resource_kind = $%d", argN))
		args = append(args, *p.ResourceKind)
		argN++
	}
	if p.ActorID != nil {
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", argN))
		args = append(args, *p.ActorID)
		argN++
	}
	if p.After != nil {
		conditions = append(conditions, fmt.Sprintf("created_at > $%d", argN))
		args = append(args, *p.After)
		argN++
	}
	if p.Before != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argN))
		args = append(args, *p.Before)
		argN++
	}

	return conditions, args, argN
}

// buildListQuery constructs a parameterized SELECT for audit entries.
func buildListQuery(p ListParams) (string, []any) {
	conditions, args, argN := buildConditions(p)

	sql := fmt.Sprintf(
		`SELECT id, actor_id, company_id, department_id, action, resource_kind, resource_id, metadata, source, created_at
		FROM audit_entries
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		strings.Join(conditions, " AND "), argN, argN+1,
	)
	args = append(args, p.Limit, p.Offset)

	return sql, args
}

func buildCountQuery(p ListParams) (string, []any) {
	conditions, args, _ := buildConditions(p)
	return "SELECT COUNT(*) FROM audit_entries WHERE " + strings.Join(conditions, " AND "), args
}
