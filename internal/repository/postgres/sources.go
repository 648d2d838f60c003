package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/engagement-engine/internal/domain"
)

// SourceRepo implements worker.SourceRepository against PostgreSQL.
type SourceRepo struct{ db *sql.DB }

// NewSourceRepo creates a Postgres-backed source repository.
func NewSourceRepo(db *sql.DB) *SourceRepo { return &SourceRepo{db: db} }

func (r *SourceRepo) ListSources(ctx context.Context, tenantID string) ([]domain.Source, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, platform_id, title, segment, last_processed_item_id,
		       joined_at, skip_ads, skip_reposts, min_length, active
		FROM engagement_sources
		WHERE tenant_id = $1 AND active = true
		ORDER BY id
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		var (
			s      domain.Source
			joined sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.TenantID, &s.PlatformID, &s.Title, &s.Segment, &s.LastProcessedItemID,
			&joined, &s.SkipAds, &s.SkipReposts, &s.MinLength, &s.Active); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if joined.Valid {
			s.JoinedAt = joined.Time
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AdvanceWatermark never moves the watermark backwards.
func (r *SourceRepo) AdvanceWatermark(ctx context.Context, sourceID string, itemID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE engagement_sources
		SET last_processed_item_id = GREATEST(last_processed_item_id, $2), updated_at = NOW()
		WHERE id = $1
	`, sourceID, itemID)
	if err != nil {
		return fmt.Errorf("advance watermark %s: %w", sourceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("advance watermark: source %s not found", sourceID)
	}
	return nil
}

// SaveSource upserts a source. The watermark is never lowered.
func (r *SourceRepo) SaveSource(ctx context.Context, s *domain.Source) error {
	var joined sql.NullTime
	if !s.JoinedAt.IsZero() {
		joined = sql.NullTime{Time: s.JoinedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO engagement_sources (id, tenant_id, platform_id, title, segment, last_processed_item_id,
			joined_at, skip_ads, skip_reposts, min_length, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			segment = EXCLUDED.segment,
			last_processed_item_id = GREATEST(engagement_sources.last_processed_item_id, EXCLUDED.last_processed_item_id),
			joined_at = EXCLUDED.joined_at,
			skip_ads = EXCLUDED.skip_ads,
			skip_reposts = EXCLUDED.skip_reposts,
			min_length = EXCLUDED.min_length,
			active = EXCLUDED.active,
			updated_at = NOW()
	`, s.ID, s.TenantID, s.PlatformID, s.Title, s.Segment, s.LastProcessedItemID,
		joined, s.SkipAds, s.SkipReposts, s.MinLength, s.Active)
	if err != nil {
		return fmt.Errorf("save source %s: %w", s.ID, err)
	}
	return nil
}
