package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/opsboard/opsboard/internal/platform/database"
)

// Recorder appends audit entries synchronously. Callers pass the querier of
// the transaction that performed the change so the entry commits or rolls
// back with it.
type Recorder struct {
	store *Store
}

// NewRecorder creates a Recorder backed by store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// Record durably appends one entry. Any failure is reported as
// ErrWriteFailed.
func (r *Recorder) Record(ctx context.Context, q database.Querier, e Event) error {
	if e.Action == "" || e.ResourceKind == "" {
		return fmt.Errorf("%w: action and resource kind are required", ErrWriteFailed)
	}
	if e.CompanyID == uuid.Nil {
		return fmt.Errorf("%w: company is required", ErrWriteFailed)
	}
	if err := r.store.InsertBatch(ctx, q, []Event{e}); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}
