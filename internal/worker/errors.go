package worker

import "errors"

// Sentinel errors returned by the engine loops.
var (
	// ErrReconnectExhausted stops a monitor after max reconnect attempts.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	// ErrSystemic trips when too many non-network errors happen in a row
	// within one polling cycle.
	ErrSystemic = errors.New("systemic failure: consecutive errors in one cycle")
	// ErrNoUsableAccounts stops a monitor once every identity is terminal.
	ErrNoUsableAccounts = errors.New("every account is banned or disabled")
)

var errNoIdentity = errors.New("no eligible identity")
