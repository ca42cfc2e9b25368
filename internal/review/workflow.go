package review

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/model"
)

// Store is the subset of the persistence layer the review workflow needs.
type Store interface {
	ReviewResult(ctx context.Context, resultID string, action model.ReviewAction, editedValue *string) (bool, error)
	ReviewQueue(ctx context.Context, project string, limit, offset int) ([]model.ReviewQueueItem, error)
	GetResult(ctx context.Context, resultID string) (*model.ExtractionResult, error)
}

// Workflow drives the human review state machine over extraction results.
type Workflow struct {
	store Store
}

// NewWorkflow creates a review workflow over the given store.
func NewWorkflow(store Store) *Workflow {
	return &Workflow{store: store}
}

// Review applies an action to a single pending result. It reports whether
// the transition happened: a result that is missing or already reviewed is
// a no-op returning false, which is what makes concurrent double-review
// safe. Accept and edit atomically write the entity attribute in the store.
func (w *Workflow) Review(ctx context.Context, resultID string, action model.ReviewAction, editedValue *string) (bool, error) {
	if resultID == "" {
		return false, eris.Wrap(model.ErrValidation, "review: result id is required")
	}
	if !action.Valid() {
		return false, eris.Wrapf(model.ErrValidation, "review: unknown action %q", action)
	}
	if action == model.ReviewActionEdit && (editedValue == nil || *editedValue == "") {
		return false, eris.Wrap(model.ErrValidation, "review: edit requires a replacement value")
	}
	if action != model.ReviewActionEdit {
		editedValue = nil
	}

	applied, err := w.store.ReviewResult(ctx, resultID, action, editedValue)
	if err != nil {
		return false, err
	}
	if !applied {
		zap.L().Debug("review not applied",
			zap.String("result_id", resultID),
			zap.String("action", string(action)),
		)
	}
	return applied, nil
}

// BulkReview applies one action across many results, each reviewed
// independently. Missing or already-reviewed ids are skipped, not errors;
// the returned count is how many results actually changed. Edit is not
// allowed in bulk because it needs a per-result value.
func (w *Workflow) BulkReview(ctx context.Context, resultIDs []string, action model.ReviewAction) (int, error) {
	if action != model.ReviewActionAccept && action != model.ReviewActionReject {
		return 0, eris.Wrapf(model.ErrValidation, "bulk review: action must be accept or reject, got %q", action)
	}

	count := 0
	for _, id := range resultIDs {
		applied, err := w.store.ReviewResult(ctx, id, action, nil)
		if err != nil {
			return count, eris.Wrapf(err, "bulk review: result %s", id)
		}
		if applied {
			count++
		}
	}

	zap.L().Info("bulk review finished",
		zap.String("action", string(action)),
		zap.Int("requested", len(resultIDs)),
		zap.Int("applied", count),
	)
	return count, nil
}

// Queue returns the pending results for a project ordered by review
// priority (highest confidence first, oldest first among ties).
func (w *Workflow) Queue(ctx context.Context, project string, limit, offset int) ([]model.ReviewQueueItem, error) {
	if project == "" {
		return nil, eris.Wrap(model.ErrValidation, "review: project is required")
	}
	return w.store.ReviewQueue(ctx, project, limit, offset)
}

// Get returns a single extraction result by id.
func (w *Workflow) Get(ctx context.Context, resultID string) (*model.ExtractionResult, error) {
	return w.store.GetResult(ctx, resultID)
}
