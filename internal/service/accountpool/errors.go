package accountpool

import "errors"

// Sentinel errors for the account pool.
var (
	ErrAccountNotFound = errors.New("account not found in pool")
	ErrNoAccounts      = errors.New("tenant has no accounts")
)
