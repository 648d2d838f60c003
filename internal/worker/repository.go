package worker

import (
	"context"
	"time"

	"github.com/ignite/engagement-engine/internal/domain"
)

// SourceRepository stores monitored sources and their watermarks.
type SourceRepository interface {
	// ListSources returns the tenant's active sources.
	ListSources(ctx context.Context, tenantID string) ([]domain.Source, error)

	// AdvanceWatermark sets last_processed_item_id to itemID when it is larger
	// than the stored value. Smaller values are ignored.
	AdvanceWatermark(ctx context.Context, sourceID string, itemID int64) error
}

// ActionRepository stores EngagementAction rows.
type ActionRepository interface {
	// HasSuccessfulComment reports whether any identity already commented
	// on the item. Pending rows count: their post may have gone through.
	HasSuccessfulComment(ctx context.Context, sourceID string, itemID int64) (bool, error)

	// InsertAction writes an action row. A second successful or pending
	// comment for the same (source, item) fails with domain.ErrDuplicateAction.
	InsertAction(ctx context.Context, a *domain.EngagementAction) error

	// FinishAction stores the outcome of a pending row: status, posted id
	// and error message. It fails with domain.ErrDuplicateAction under the
	// same rule as InsertAction.
	FinishAction(ctx context.Context, a *domain.EngagementAction) error

	// ListFeedbackCandidates returns unchecked successful comments of the
	// tenant created before the cutoff. Rows never checked come first, then
	// the ones checked longest ago; ties go oldest first.
	ListFeedbackCandidates(ctx context.Context, tenantID string, createdBefore time.Time, limit int) ([]domain.EngagementAction, error)

	// TouchFeedback records a check that found no response, moving the row
	// behind the others in the candidate order.
	TouchFeedback(ctx context.Context, actionID string, at time.Time) error

	// MarkFeedback records the reply count and marks the row checked. It only
	// touches unchecked rows and never lowers got_reply or reply_count; it
	// reports whether a row was updated.
	MarkFeedback(ctx context.Context, actionID string, replyCount int) (bool, error)
}

// SessionStore checkpoints the monitor's session state.
type SessionStore interface {
	// LoadSession returns nil, nil when nothing was saved for the tenant.
	LoadSession(ctx context.Context, tenantID string) (*domain.SessionState, error)
	SaveSession(ctx context.Context, s *domain.SessionState) error
}
