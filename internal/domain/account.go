package domain

import "time"

// AccountStatus is the lifecycle state of an automated identity.
type AccountStatus string

const (
	AccountWarming  AccountStatus = "warming"
	AccountActive   AccountStatus = "active"
	AccountCooldown AccountStatus = "cooldown"
	AccountBanned   AccountStatus = "banned"
	AccountDisabled AccountStatus = "disabled"
)

// Terminal reports whether the status can never be handed out again.
func (s AccountStatus) Terminal() bool {
	return s == AccountBanned || s == AccountDisabled
}

// ActionType enumerates the kinds of work an identity performs.
type ActionType string

const (
	ActionComment   ActionType = "comment"
	ActionViewStory ActionType = "view_story"
	ActionInvite    ActionType = "invite"

	// ActionFetch and ActionFeedback lease a reader identity for polling and
	// reply checks. They are never counted against daily caps.
	ActionFetch    ActionType = "fetch"
	ActionFeedback ActionType = "feedback"
)

// Counted reports whether the action type is subject to daily caps.
func (t ActionType) Counted() bool {
	switch t {
	case ActionComment, ActionViewStory, ActionInvite:
		return true
	default:
		return false
	}
}

// Account is one automated identity owned by a tenant.
type Account struct {
	ID             string        `json:"id" db:"id"`
	TenantID       string        `json:"tenant_id" db:"tenant_id"`
	CredentialsRef string        `json:"-" db:"credentials_ref"`
	Status         AccountStatus `json:"status" db:"status"`
	Segment        string        `json:"segment,omitempty" db:"segment"`
	LinkedSourceID string        `json:"linked_source_id,omitempty" db:"linked_source_id"`

	// DailyCounters holds per-action usage for CountersDay (UTC, YYYY-MM-DD).
	DailyCounters map[ActionType]int `json:"daily_counters"`
	CountersDay   string             `json:"counters_day" db:"counters_day"`

	CooldownUntil *time.Time `json:"cooldown_until,omitempty" db:"cooldown_until"`

	// JoinedAt records when this identity first gained access to each source.
	JoinedAt map[string]time.Time `json:"joined_at,omitempty"`

	// DisabledSources lists sources this identity is forbidden to act in.
	DisabledSources map[string]bool `json:"disabled_sources,omitempty"`

	FailureReason string    `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	LastUsedAt    time.Time `json:"last_used_at" db:"last_used_at"`
}

// UTCDay formats t as the day key used for daily counters.
func UTCDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// InCooldown reports whether the cooldown window is still open at now.
func (a *Account) InCooldown(now time.Time) bool {
	return a.CooldownUntil != nil && now.Before(*a.CooldownUntil)
}

// Counter returns today's usage for t, treating a stale day as zero.
func (a *Account) Counter(t ActionType, now time.Time) int {
	if a.CountersDay != UTCDay(now) {
		return 0
	}
	return a.DailyCounters[t]
}

// Clone returns a deep copy so callers never share maps with the pool.
func (a *Account) Clone() *Account {
	c := *a
	if a.CooldownUntil != nil {
		t := *a.CooldownUntil
		c.CooldownUntil = &t
	}
	c.DailyCounters = make(map[ActionType]int, len(a.DailyCounters))
	for k, v := range a.DailyCounters {
		c.DailyCounters[k] = v
	}
	c.JoinedAt = make(map[string]time.Time, len(a.JoinedAt))
	for k, v := range a.JoinedAt {
		c.JoinedAt[k] = v
	}
	c.DisabledSources = make(map[string]bool, len(a.DisabledSources))
	for k, v := range a.DisabledSources {
		c.DisabledSources[k] = v
	}
	return &c
}
