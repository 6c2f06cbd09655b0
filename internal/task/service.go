package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opsboard/opsboard/internal/audit"
	"github.com/opsboard/opsboard/internal/authz"
	"github.com/opsboard/opsboard/internal/platform/database"
)

// CreateInput carries the caller-supplied fields of a new task. An empty
// AssigneeID assigns the task to its creator.
type CreateInput struct {
	Title       string
	Description string
	Status      Status
	Priority    Priority
	Category    string
	AssigneeID  string
	DueDate     *time.Time
}

// UpdateInput carries a partial update. Nil fields are left unchanged.
// Version, when set, must match the stored version.
type UpdateInput struct {
	Title       *string
	Description *string
	Status      *Status
	Priority    *Priority
	Category    *string
	AssigneeID  *string
	DueDate     *time.Time
	Version     *int
}

// ListFilter carries the caller-supplied list filters and page.
type ListFilter struct {
	Status     *Status
	Priority   *Priority
	AssigneeID *string
	Category   *string
	Page       int
	Limit      int
}

// Page is one page of a task listing.
type Page struct {
	Tasks []Task `json:"tasks"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// Service sequences every task operation as load, gate, mutate, audit
// inside one company-scoped transaction, then publishes the change.
type Service struct {
	pool      *pgxpool.Pool
	store     *Store
	recorder  *audit.Recorder
	publisher Publisher
	now       func() time.Time
}

func NewService(pool *pgxpool.Pool, store *Store, recorder *audit.Recorder, publisher Publisher) *Service {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Service{
		pool:      pool,
		store:     store,
		recorder:  recorder,
		publisher: publisher,
		now:       time.Now,
	}
}

func (s *Service) inCompany(ctx context.Context, actor *authz.Actor, fn func(ctx context.Context, q database.Querier) error) error {
	if actor == nil {
		return authz.ErrUnauthenticated
	}
	if !actor.Valid() {
		return fmt.Errorf("%w: incomplete identity", authz.ErrForbidden)
	}
	return database.WithCompanyTx(ctx, s.pool, actor.CompanyID, fn)
}

// Create stores a new task in the assignee's department.
func (s *Service) Create(ctx context.Context, actor *authz.Actor, in CreateInput) (*Task, error) {
	t := &Task{
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		Category:    in.Category,
		AssigneeID:  in.AssigneeID,
		DueDate:     in.DueDate,
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if err := t.validate(); err != nil {
		return nil, err
	}

	var created *Task
	err := s.inCompany(ctx, actor, func(ctx context.Context, q database.Querier) error {
		if t.AssigneeID == "" {
			t.AssigneeID = actor.ID
		}
		assignee, err := s.store.LookupMember(ctx, q, t.AssigneeID)
		if err != nil {
			return err
		}
		if err := authz.CheckAssignment(actor, assignee); err != nil {
			return err
		}

		t.CompanyID = actor.CompanyID
		t.DepartmentID = assignee.DepartmentID
		t.CreatedByID = actor.ID

		created, err = s.store.Create(ctx, q, t)
		if err != nil {
			return err
		}
		return s.recorder.Record(ctx, q, taskEvent(actor, audit.ActionTaskCreated, created).
			WithMetadata("title", created.Title).
			WithMetadata("assignee_id", created.AssigneeID))
	})
	if err != nil {
		return nil, err
	}

	s.publish(EventCreated, created)
	return created, nil
}

// Get returns one task the actor may read.
func (s *Service) Get(ctx context.Context, actor *authz.Actor, id string) (*Task, error) {
	var found *Task
	err := s.inCompany(ctx, actor, func(ctx context.Context, q database.Querier) error {
		t, err := s.store.GetByID(ctx, q, id)
		if err != nil {
			return err
		}
		if !authz.CanAccess(actor, t.Ref()) {
			return fmt.Errorf("%w: task outside your scope", authz.ErrForbidden)
		}
		found = t
		return s.recorder.Record(ctx, q, taskEvent(actor, audit.ActionTaskRead, t))
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// List returns the page of tasks inside the actor's boundary.
func (s *Service) List(ctx context.Context, actor *authz.Actor, f ListFilter) (*Page, error) {
	boundary, err := authz.BoundaryFor(actor, authz.ResourceTask)
	if err != nil {
		return nil, err
	}

	params := ListParams{
		Boundary:   boundary,
		Status:     f.Status,
		Priority:   f.Priority,
		AssigneeID: f.AssigneeID,
		Category:   f.Category,
		Limit:      f.Limit,
		Offset:     (f.Page - 1) * f.Limit,
	}

	var page *Page
	err = s.inCompany(ctx, actor, func(ctx context.Context, q database.Querier) error {
		tasks, total, err := s.store.List(ctx, q, params)
		if err != nil {
			return err
		}
		visible := tasks[:0]
		for _, t := range tasks {
			if authz.CanAccess(actor, t.Ref()) {
				visible = append(visible, t)
			}
		}
		page = &Page{Tasks: visible, Total: total, Page: f.Page, Limit: f.Limit}

		evt := audit.ActorEvent(actor, audit.ActionTaskListed, authz.ResourceTask, audit.ResourceAll).
			WithMetadata("count", len(visible))
		return s.recorder.Record(ctx, q, evt)
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Update applies a partial update. Reassignment re-runs the assignment
// rule and moves the task into the new assignee's department.
func (s *Service) Update(ctx context.Context, actor *authz.Actor, id string, in UpdateInput) (*Task, error) {
	return s.mutate(ctx, actor, id, in.Version, audit.ActionTaskUpdated, func(ctx context.Context, q database.Querier, t *Task) (map[string]any, error) {
		changes := map[string]any{}
		if in.Title != nil && *in.Title != t.Title {
			t.Title = *in.Title
			changes["title"] = t.Title
		}
		if in.Description != nil && *in.Description != t.Description {
			t.Description = *in.Description
			changes["description"] = true
		}
		if in.Status != nil && *in.Status != t.Status {
			changes["status"] = map[string]Status{"from": t.Status, "to": *in.Status}
			t.Status = *in.Status
		}
		if in.Priority != nil && *in.Priority != t.Priority {
			changes["priority"] = map[string]Priority{"from": t.Priority, "to": *in.Priority}
			t.Priority = *in.Priority
		}
		if in.Category != nil && *in.Category != t.Category {
			t.Category = *in.Category
			changes["category"] = t.Category
		}
		if in.DueDate != nil {
			t.DueDate = in.DueDate
			changes["due_date"] = in.DueDate
		}
		if in.AssigneeID != nil && *in.AssigneeID != t.AssigneeID {
			assignee, err := s.store.LookupMember(ctx, q, *in.AssigneeID)
			if err != nil {
				return nil, err
			}
			if err := authz.CheckAssignment(actor, assignee); err != nil {
				return nil, err
			}
			changes["assignee_id"] = map[string]string{"from": t.AssigneeID, "to": assignee.ID}
			t.AssigneeID = assignee.ID
			t.DepartmentID = assignee.DepartmentID
		}
		return changes, t.validate()
	})
}

// UpdateStatus changes only the status of a task.
func (s *Service) UpdateStatus(ctx context.Context, actor *authz.Actor, id string, status Status, version *int) (*Task, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.mutate(ctx, actor, id, version, audit.ActionTaskStatusChanged, func(_ context.Context, _ database.Querier, t *Task) (map[string]any, error) {
		changes := map[string]any{"status": map[string]Status{"from": t.Status, "to": status}}
		t.Status = status
		return changes, nil
	})
}

// mutate loads the task, applies the read then write gates, lets apply
// edit it and persists the result with an audit entry.
func (s *Service) mutate(
	ctx context.Context,
	actor *authz.Actor,
	id string,
	version *int,
	action string,
	apply func(ctx context.Context, q database.Querier, t *Task) (map[string]any, error),
) (*Task, error) {
	var updated *Task
	var previous authz.TaskRef
	err := s.inCompany(ctx, actor, func(ctx context.Context, q database.Querier) error {
		t, err := s.store.GetByID(ctx, q, id)
		if err != nil {
			return err
		}
		previous = t.Ref()
		if !authz.CanAccess(actor, t.Ref()) {
			return fmt.Errorf("%w: task outside your scope", authz.ErrForbidden)
		}
		if !authz.CanMutate(actor, t.Ref()) {
			return fmt.Errorf("%w: you may not modify this task", authz.ErrForbidden)
		}
		if version != nil && *version != t.Version {
			return ErrVersionConflict
		}

		changes, err := apply(ctx, q, t)
		if err != nil {
			return err
		}

		updated, err = s.store.Update(ctx, q, t)
		if err != nil {
			return err
		}
		return s.recorder.Record(ctx, q, taskEvent(actor, action, updated).WithMetadata(audit.MetadataChanges, changes))
	})
	if err != nil {
		return nil, err
	}

	e := s.event(EventUpdated, updated)
	if updated.DepartmentID != previous.DepartmentID {
		e.Previous = &previous
	}
	s.publisher.Publish(e)
	slog.Debug("task event published", "type", e.Type, "task_id", updated.ID)
	return updated, nil
}

// Delete removes a task. Viewers never delete.
func (s *Service) Delete(ctx context.Context, actor *authz.Actor, id string) error {
	var deleted *Task
	err := s.inCompany(ctx, actor, func(ctx context.Context, q database.Querier) error {
		t, err := s.store.GetByID(ctx, q, id)
		if err != nil {
			return err
		}
		if !authz.CanAccess(actor, t.Ref()) {
			return fmt.Errorf("%w: task outside your scope", authz.ErrForbidden)
		}
		if !authz.CanDelete(actor, t.Ref()) {
			return fmt.Errorf("%w: you may not delete this task", authz.ErrForbidden)
		}
		if err := s.store.Delete(ctx, q, id); err != nil {
			return err
		}
		deleted = t
		return s.recorder.Record(ctx, q, taskEvent(actor, audit.ActionTaskDeleted, t).WithMetadata("title", t.Title))
	})
	if err != nil {
		return err
	}

	s.publish(EventDeleted, deleted)
	return nil
}

func (s *Service) publish(typ EventType, t *Task) {
	if t == nil {
		return
	}
	s.publisher.Publish(s.event(typ, t))
	slog.Debug("task event published", "type", typ, "task_id", t.ID)
}

func (s *Service) event(typ EventType, t *Task) Event {
	return Event{Type: typ, Task: *t, At: s.now()}
}

// taskEvent attributes an audit entry to actor and files it under the
// task's department so department-scoped readers see it.
func taskEvent(actor *authz.Actor, action string, t *Task) audit.Event {
	e := audit.ActorEvent(actor, action, authz.ResourceTask, t.ID)
	if did, err := uuid.Parse(t.DepartmentID); err == nil {
		e.DepartmentID = &did
	}
	return e
}
