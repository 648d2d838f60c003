// Package notify delivers operator notifications. Delivery is fire-and-forget:
// the engine loops never block on it and a failed delivery is logged and
// dropped, never retried.
package notify

import (
	"context"
	"time"
)

// Kind identifies a notification type.
type Kind string

const (
	KindActionSucceeded Kind = "action_succeeded"
	KindActionFailed    Kind = "action_failed"
	KindInfo            Kind = "info"
	KindSystemStart     Kind = "system_start"
	KindSystemStop      Kind = "system_stop"
	KindFatal           Kind = "fatal"
)

// Event is one operator notification.
type Event struct {
	Kind       Kind           `json:"kind"`
	TenantID   string         `json:"tenant_id,omitempty"`
	ActionType string         `json:"action_type,omitempty"`
	AccountID  string         `json:"account_id,omitempty"`
	SourceID   string         `json:"source_id,omitempty"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	Message    string         `json:"message,omitempty"`
	Preview    string         `json:"preview,omitempty"`
	Counts     map[string]int `json:"counts,omitempty"`
	At         time.Time      `json:"at"`
}

// Notifier delivers events to an operator channel.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Sender is the fire-and-forget side used by the engine loops. *Async
// implements it.
type Sender interface {
	Send(e Event)
}

// Nop discards every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) error { return nil }

// Send implements Sender.
func (Nop) Send(Event) {}

const previewLen = 120

// Preview truncates content for a notification preview.
func Preview(content string) string {
	r := []rune(content)
	if len(r) <= previewLen {
		return content
	}
	return string(r[:previewLen]) + "…"
}
