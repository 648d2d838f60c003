package engine

import "errors"

var (
	// ErrAllAccountsBanned stops the orchestrator when a tenant has no usable
	// identity left.
	ErrAllAccountsBanned = errors.New("all accounts banned")
	// ErrNoTenants is returned by Run when nothing is configured.
	ErrNoTenants = errors.New("no tenants configured")
	// ErrUnknownTenant is returned for lookups by an id that is not running.
	ErrUnknownTenant = errors.New("unknown tenant")
)
