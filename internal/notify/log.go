package notify

import (
	"context"

	"github.com/ignite/engagement-engine/internal/pkg/logger"
)

// LogNotifier writes every event to the structured log. It is the default
// when no operator channel is configured.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(_ context.Context, e Event) error {
	fields := []interface{}{
		"component", "notify",
		"kind", e.Kind,
	}
	add := func(k, v string) {
		if v != "" {
			fields = append(fields, k, v)
		}
	}
	add("tenant", e.TenantID)
	add("action_type", e.ActionType)
	add("account", e.AccountID)
	add("source", e.SourceID)
	add("error_kind", e.ErrorKind)
	add("message", e.Message)
	add("preview", e.Preview)
	for k, v := range e.Counts {
		fields = append(fields, "count_"+k, v)
	}

	switch e.Kind {
	case KindFatal:
		logger.Error("operator notification", fields...)
	case KindActionFailed:
		logger.Warn("operator notification", fields...)
	default:
		logger.Info("operator notification", fields...)
	}
	return nil
}
