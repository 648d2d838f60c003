package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/engagement-engine/internal/domain"
)

const uniqueViolation = "23505"

// ActionRepo implements worker.ActionRepository against PostgreSQL.
type ActionRepo struct{ db *sql.DB }

// NewActionRepo creates a Postgres-backed action repository.
func NewActionRepo(db *sql.DB) *ActionRepo { return &ActionRepo{db: db} }

func (r *ActionRepo) HasSuccessfulComment(ctx context.Context, sourceID string, itemID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM engagement_actions
			WHERE source_id = $1 AND item_id = $2 AND action_type = 'comment'
			  AND status IN ('success', 'pending')
		)`, sourceID, itemID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return exists, nil
}

// InsertAction relies on the partial unique index for cross-process dedup.
func (r *ActionRepo) InsertAction(ctx context.Context, a *domain.EngagementAction) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var relevance sql.NullFloat64
	if a.RelevanceScore != nil {
		relevance = sql.NullFloat64{Float64: *a.RelevanceScore, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO engagement_actions (id, tenant_id, account_id, action_type, source_id, item_id,
			posted_id, segment, strategy_used, topic, content, status, error_message,
			relevance_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, a.ID, a.TenantID, a.AccountID, string(a.Type), a.SourceID, a.ItemID,
		a.PostedID, a.Segment, a.StrategyUsed, a.Topic, a.Content, string(a.Status), a.ErrorMessage,
		relevance, a.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrDuplicateAction
		}
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// FinishAction replaces a pending row's outcome.
func (r *ActionRepo) FinishAction(ctx context.Context, a *domain.EngagementAction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE engagement_actions
		SET status = $2, posted_id = $3, error_message = $4
		WHERE id = $1
	`, a.ID, string(a.Status), a.PostedID, a.ErrorMessage)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrDuplicateAction
		}
		return fmt.Errorf("finish action %s: %w", a.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish action %s: not found", a.ID)
	}
	return nil
}

func (r *ActionRepo) ListFeedbackCandidates(ctx context.Context, tenantID string, createdBefore time.Time, limit int) ([]domain.EngagementAction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, account_id, action_type, source_id, item_id, posted_id, segment,
		       strategy_used, topic, status, relevance_score, got_reply, reply_count, last_checked_at, created_at
		FROM engagement_actions
		WHERE tenant_id = $1 AND action_type = 'comment' AND status = 'success'
		  AND NOT feedback_checked AND created_at < $2
		ORDER BY last_checked_at NULLS FIRST, created_at
		LIMIT $3
	`, tenantID, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list feedback candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.EngagementAction
	for rows.Next() {
		var (
			a              domain.EngagementAction
			actionType, st string
			relevance      sql.NullFloat64
			lastChecked    sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.TenantID, &a.AccountID, &actionType, &a.SourceID, &a.ItemID, &a.PostedID, &a.Segment,
			&a.StrategyUsed, &a.Topic, &st, &relevance, &a.GotReply, &a.ReplyCount, &lastChecked, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.Type = domain.ActionType(actionType)
		a.Status = domain.ActionStatus(st)
		if relevance.Valid {
			v := relevance.Float64
			a.RelevanceScore = &v
		}
		if lastChecked.Valid {
			t := lastChecked.Time
			a.LastCheckedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *ActionRepo) MarkFeedback(ctx context.Context, actionID string, replyCount int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE engagement_actions
		SET feedback_checked = true,
		    got_reply = got_reply OR $2 > 0,
		    reply_count = GREATEST(reply_count, $2)
		WHERE id = $1 AND NOT feedback_checked
	`, actionID, replyCount)
	if err != nil {
		return false, fmt.Errorf("mark feedback %s: %w", actionID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *ActionRepo) TouchFeedback(ctx context.Context, actionID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE engagement_actions SET last_checked_at = $2
		WHERE id = $1 AND NOT feedback_checked
	`, actionID, at)
	if err != nil {
		return fmt.Errorf("touch feedback %s: %w", actionID, err)
	}
	return nil
}
