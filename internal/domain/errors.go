package domain

import "errors"

// ErrDuplicateAction is returned by action stores when a second successful
// comment for the same (source, item) would be written.
var ErrDuplicateAction = errors.New("successful comment already recorded for item")
