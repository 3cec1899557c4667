package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSNotifier publishes each notification as JSON on a NATS subject.
// The connection reconnects on its own; notifications published while it
// is down fail rather than queue.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

// NATSOptions configures NewNATSNotifier.
type NATSOptions struct {
	URL     string
	Subject string
	Name    string
	Timeout time.Duration
}

// NewNATSNotifier connects to the server at opts.URL.
func NewNATSNotifier(opts NATSOptions, logger *zap.Logger) (*NATSNotifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Subject == "" {
		return nil, errors.New("nats subject is required")
	}
	if opts.Name == "" {
		opts.Name = "overhead"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}

	conn, err := nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.Timeout(opts.Timeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", opts.URL, err)
	}

	return &NATSNotifier{conn: conn, subject: opts.Subject, logger: logger}, nil
}

func (n *NATSNotifier) Notify(ctx context.Context, notification Notification) error {
	if !n.conn.IsConnected() {
		return fmt.Errorf("nats: %w", nats.ErrConnectionClosed)
	}

	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	// Publish only buffers; flush so a dead server surfaces as an error
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush notification: %w", err)
	}
	return nil
}

// Subject is where notifications are published.
func (n *NATSNotifier) Subject() string {
	return n.subject
}

// Close drains pending messages and closes the connection.
func (n *NATSNotifier) Close() error {
	if err := n.conn.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("failed to drain nats connection: %w", err)
	}
	return nil
}
