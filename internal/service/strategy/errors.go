package strategy

import "errors"

// Sentinel errors for the strategy selector.
var (
	ErrNoStrategies    = errors.New("no candidate strategies configured")
	ErrMissingStrategy = errors.New("outcome carries no strategy")
)
