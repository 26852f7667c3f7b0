package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/yairfalse/vigil/internal/monitoring/dispatch"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix prefixes published subjects: <prefix>.metrics and
// <prefix>.alerts
const DefaultSubjectPrefix = "vigil"

// NATSConfig configures the NATS connection
type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// Publisher is the subset of *nats.Conn used by NATSSink
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes events as JSON messages
type NATSSink struct {
	pub    Publisher
	prefix string
	logger *zap.Logger
}

// NewNATSSink creates a sink publishing through pub
func NewNATSSink(pub Publisher, prefix string, logger *zap.Logger) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSSink{pub: pub, prefix: prefix, logger: logger}
}

// ConnectNATS opens a connection with reconnect handling
func ConnectNATS(cfg NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "vigil"
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("Disconnected from NATS", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("NATS error", zap.String("subject", subject), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// Name implements Sink
func (s *NATSSink) Name() string { return "nats" }

// Kinds implements Sink
func (s *NATSSink) Kinds() []dispatch.Kind {
	return []dispatch.Kind{dispatch.KindMetrics, dispatch.KindAlerts}
}

// Subject returns the subject events of kind are published on
func (s *NATSSink) Subject(kind dispatch.Kind) string {
	return s.prefix + "." + string(kind)
}

// Handle implements Sink
func (s *NATSSink) Handle(_ context.Context, ev dispatch.Event) error {
	var payload any
	switch ev.Kind {
	case dispatch.KindMetrics:
		payload = ev.Snapshot
	case dispatch.KindAlerts:
		payload = ev.Alerts
	default:
		return fmt.Errorf("unsupported event kind %q", ev.Kind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", ev.Kind, err)
	}

	subject := s.Subject(ev.Kind)
	if err := s.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}

	s.logger.Debug("Published event",
		zap.String("subject", subject),
		zap.Int("bytes", len(data)))
	return nil
}
