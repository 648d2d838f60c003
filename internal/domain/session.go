package domain

import "time"

// SessionState is the monitor's "actions this session" bookkeeping. It is
// checkpointed after every action so a restart can tell a live session from
// a stale one.
type SessionState struct {
	TenantID       string     `json:"tenant_id"`
	StartedAt      time.Time  `json:"started_at"`
	Actions        int        `json:"actions"`
	Target         int        `json:"target"`
	BreakUntil     *time.Time `json:"break_until,omitempty"`
	CheckpointedAt time.Time  `json:"checkpointed_at"`
}

// OnBreak reports whether the break window is open at now.
func (s *SessionState) OnBreak(now time.Time) bool {
	return s.BreakUntil != nil && now.Before(*s.BreakUntil)
}
