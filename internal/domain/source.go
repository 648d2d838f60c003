package domain

import "time"

// Source is a monitored content surface (channel, discussion group, feed).
type Source struct {
	ID         string `json:"id" db:"id"`
	TenantID   string `json:"tenant_id" db:"tenant_id"`
	PlatformID string `json:"platform_id" db:"platform_id"`
	Title      string `json:"title" db:"title"`
	Segment    string `json:"segment,omitempty" db:"segment"`

	// LastProcessedItemID is the high-water mark. It only moves forward.
	LastProcessedItemID int64 `json:"last_processed_item_id" db:"last_processed_item_id"`

	// JoinedAt is when the owning identity first gained access; drives the lurk rule.
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`

	SkipAds     bool `json:"skip_ads" db:"skip_ads"`
	SkipReposts bool `json:"skip_reposts" db:"skip_reposts"`
	MinLength   int  `json:"min_length" db:"min_length"`
	Active      bool `json:"active" db:"active"`
}

// Advance moves the watermark to id if it is newer. Returns true when it moved.
func (s *Source) Advance(id int64) bool {
	if id <= s.LastProcessedItemID {
		return false
	}
	s.LastProcessedItemID = id
	return true
}

// Lurking reports whether the source is still inside its lurk window at now.
func (s *Source) Lurking(now time.Time, window time.Duration) bool {
	if s.JoinedAt.IsZero() {
		return false
	}
	return now.Sub(s.JoinedAt) < window
}

// Item is one piece of content fetched from a source.
type Item struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	IsForward bool      `json:"is_forward"`
	IsAd      bool      `json:"is_ad"`
	Date      time.Time `json:"date"`
}
