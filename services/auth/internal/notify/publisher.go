package notify

import (
	"context"

	"github.com/rca-academy/school_mis/pkg/logging"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, event *Event) error
}

// LogPublisher only logs event metadata. Used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, topic string, event *Event) error {
	logging.FromContext(ctx).Info("event_not_published",
		"topic", topic,
		"event_type", event.Type,
		"event_id", event.ID,
		"reason", "no broker configured",
	)
	return nil
}
