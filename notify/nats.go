package notify

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/evdnx/tradecore/logger"
)

// NATSConfig holds the NATS connection settings.
type NATSConfig struct {
	URL           string        `yaml:"url" env:"URL, overwrite" default:"nats://127.0.0.1:4222"`
	Subject       string        `yaml:"subject" env:"SUBJECT, overwrite" default:"tradecore.events"`
	MaxReconnects int           `yaml:"max_reconnects" default:"60"`
	ReconnectWait time.Duration `yaml:"reconnect_wait" default:"2s"`
}

// publisher is the part of *nats.Conn the notifier uses.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes each message as JSON to <subject>.<kind>.
type NATSNotifier struct {
	conn    *nats.Conn
	pub     publisher
	subject string
	log     logger.Logger
}

// NewNATSNotifier connects to the server in cfg.
func NewNATSNotifier(cfg NATSConfig, log logger.Logger) (*NATSNotifier, error) {
	if log == nil {
		log = logger.NewNop()
	}
	opts := []nats.Option{
		nats.Name("tradecore"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats_disconnected", logger.Err(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats_reconnected", logger.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("nats_closed")
		}),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	n := newNATSNotifier(conn, cfg.Subject, log)
	n.conn = conn
	return n, nil
}

func newNATSNotifier(pub publisher, subject string, log logger.Logger) *NATSNotifier {
	if subject == "" {
		subject = "tradecore.events"
	}
	return &NATSNotifier{pub: pub, subject: subject, log: log}
}

func (n *NATSNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := n.pub.Publish(n.subjectFor(msg), data); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func (n *NATSNotifier) subjectFor(msg Message) string {
	if msg.Kind == "" {
		return n.subject
	}
	return n.subject + "." + msg.Kind
}

// Close flushes pending publishes and closes the connection.
func (n *NATSNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
