package strategy

import (
	"context"
	"time"

	"github.com/ignite/engagement-engine/internal/domain"
)

// Repository persists bandit rows.
type Repository interface {
	// ListEffectiveness returns every strategy row stored for the key.
	ListEffectiveness(ctx context.Context, segment, sourceID string) ([]domain.StrategyEffectiveness, error)

	// AddOutcome upserts the row adding 1 to attempts and reward to successes.
	AddOutcome(ctx context.Context, segment, sourceID, strategy string, reward float64, topic string, at time.Time) error
}
