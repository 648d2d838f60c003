package domain

import "time"

// ActionStatus is the outcome recorded for an EngagementAction.
type ActionStatus string

const (
	// ActionPending is written under the item claim right before the
	// platform call and replaced by the call's outcome.
	ActionPending     ActionStatus = "pending"
	ActionSuccess     ActionStatus = "success"
	ActionFailed      ActionStatus = "failed"
	ActionRateLimited ActionStatus = "rate_limited"
)

// EngagementAction is one attempted comment, story view or invite.
type EngagementAction struct {
	ID             string       `json:"id" db:"id"`
	TenantID       string       `json:"tenant_id" db:"tenant_id"`
	AccountID      string       `json:"account_id" db:"account_id"`
	Type           ActionType   `json:"type" db:"action_type"`
	SourceID       string       `json:"source_id" db:"source_id"`
	ItemID         int64        `json:"item_id" db:"item_id"`
	PostedID       string       `json:"posted_id,omitempty" db:"posted_id"`
	Segment        string       `json:"segment,omitempty" db:"segment"`
	StrategyUsed   string       `json:"strategy_used,omitempty" db:"strategy_used"`
	Topic          string       `json:"topic,omitempty" db:"topic"`
	Content        string       `json:"content,omitempty" db:"content"`
	Status         ActionStatus `json:"status" db:"status"`
	ErrorMessage   string       `json:"error_message,omitempty" db:"error_message"`
	RelevanceScore *float64     `json:"relevance_score,omitempty" db:"relevance_score"`

	// GotReply and ReplyCount only ever move upward, written by the feedback loop.
	GotReply        bool `json:"got_reply" db:"got_reply"`
	ReplyCount      int  `json:"reply_count" db:"reply_count"`
	FeedbackChecked bool `json:"feedback_checked" db:"feedback_checked"`
	// LastCheckedAt is set when a check found no response yet.
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty" db:"last_checked_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Live reports whether the row blocks further comments on its item: it is a
// successful comment, or a pending one whose outcome is unknown.
func (a *EngagementAction) Live() bool {
	return a.Type == ActionComment && (a.Status == ActionSuccess || a.Status == ActionPending)
}
