// Package sinks forwards monitoring events to logs, NATS and Prometheus
package sinks

import (
	"context"
	"fmt"

	"github.com/yairfalse/vigil/internal/monitoring/dispatch"
)

// Sink consumes dispatched events
type Sink interface {
	Name() string
	Kinds() []dispatch.Kind
	Handle(ctx context.Context, ev dispatch.Event) error
}

// Subscriber registers event handlers
type Subscriber interface {
	Subscribe(kind dispatch.Kind, name string, handler dispatch.Handler) (dispatch.Subscription, error)
}

// Attach subscribes every sink to the kinds it consumes
func Attach(sub Subscriber, sinks ...Sink) ([]dispatch.Subscription, error) {
	var subs []dispatch.Subscription
	for _, s := range sinks {
		for _, kind := range s.Kinds() {
			handle, err := sub.Subscribe(kind, s.Name(), s.Handle)
			if err != nil {
				return subs, fmt.Errorf("failed to attach sink %s: %w", s.Name(), err)
			}
			subs = append(subs, handle)
		}
	}
	return subs, nil
}
