package domain

import "time"

// WildcardSource is the source key of per-segment aggregate bandit rows.
const WildcardSource = "*"

// StrategyEffectiveness is the persisted bandit state for one
// (segment, source-or-wildcard, strategy) combination.
type StrategyEffectiveness struct {
	Segment     string    `json:"segment" db:"segment"`
	SourceID    string    `json:"source_id" db:"source_id"`
	Strategy    string    `json:"strategy" db:"strategy"`
	Attempts    float64   `json:"attempts" db:"attempts"`
	Successes   float64   `json:"successes" db:"successes"`
	LastTopic   string    `json:"last_topic,omitempty" db:"last_topic"`
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
}

// Score is successes/attempts, zero before the first trial.
func (s StrategyEffectiveness) Score() float64 {
	if s.Attempts <= 0 {
		return 0
	}
	return s.Successes / s.Attempts
}
