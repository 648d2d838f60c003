package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/engagement-engine/internal/domain"
)

// StrategyRepo implements strategy.Repository against PostgreSQL.
type StrategyRepo struct{ db *sql.DB }

// NewStrategyRepo creates a Postgres-backed bandit repository.
func NewStrategyRepo(db *sql.DB) *StrategyRepo { return &StrategyRepo{db: db} }

func (r *StrategyRepo) ListEffectiveness(ctx context.Context, segment, sourceID string) ([]domain.StrategyEffectiveness, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT segment, source_id, strategy, attempts, successes, last_topic, last_updated
		FROM strategy_effectiveness
		WHERE segment = $1 AND source_id = $2
		ORDER BY strategy
	`, segment, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list strategy rows: %w", err)
	}
	defer rows.Close()

	var out []domain.StrategyEffectiveness
	for rows.Next() {
		var s domain.StrategyEffectiveness
		if err := rows.Scan(&s.Segment, &s.SourceID, &s.Strategy, &s.Attempts, &s.Successes, &s.LastTopic, &s.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan strategy row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AddOutcome upserts additively so concurrent writers never lose a trial.
func (r *StrategyRepo) AddOutcome(ctx context.Context, segment, sourceID, strategy string, reward float64, topic string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO strategy_effectiveness (segment, source_id, strategy, attempts, successes, last_topic, last_updated)
		VALUES ($1, $2, $3, 1, $4, $5, $6)
		ON CONFLICT (segment, source_id, strategy) DO UPDATE SET
			attempts = strategy_effectiveness.attempts + 1,
			successes = strategy_effectiveness.successes + EXCLUDED.successes,
			last_topic = COALESCE(NULLIF(EXCLUDED.last_topic, ''), strategy_effectiveness.last_topic),
			last_updated = EXCLUDED.last_updated
	`, segment, sourceID, strategy, reward, topic, at)
	if err != nil {
		return fmt.Errorf("add strategy outcome: %w", err)
	}
	return nil
}
