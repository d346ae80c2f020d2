package notify

import (
	"context"
	"errors"
	"time"

	"github.com/evdnx/tradecore/logger"
)

// Kinds of message the engine emits.
const (
	KindOrder        = "order"
	KindTradeClosed  = "trade_closed"
	KindRiskHalt     = "risk_halt"
	KindConnectivity = "connectivity"
	KindReport       = "report"
)

// Message is one operator notification.
type Message struct {
	Kind   string            `json:"kind"`
	Symbol string            `json:"symbol,omitempty"`
	Text   string            `json:"text"`
	Time   time.Time         `json:"time"`
	Attrs  map[string]string `json:"attrs,omitempty"`
}

// Notifier delivers messages. Delivery is best effort.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Config selects and tunes the notification channel.
type Config struct {
	Backend     string        `yaml:"backend" env:"BACKEND, overwrite" default:"log" validate:"oneof=log nats none"`
	NATS        NATSConfig    `yaml:"nats" env:", prefix=NATS_"`
	QueueSize   int           `yaml:"queue_size" default:"256" validate:"gte=1"`
	SendTimeout time.Duration `yaml:"send_timeout" default:"5s" validate:"gt=0"`
}

// LogNotifier writes messages to the structured log.
type LogNotifier struct {
	log logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	fields := []logger.Field{
		logger.String("kind", msg.Kind),
		logger.String("text", msg.Text),
	}
	if msg.Symbol != "" {
		fields = append(fields, logger.String("symbol", msg.Symbol))
	}
	for k, v := range msg.Attrs {
		fields = append(fields, logger.String(k, v))
	}
	n.log.Info("notification", fields...)
	return nil
}

// Nop discards every message.
type Nop struct{}

func (Nop) Send(context.Context, Message) error { return nil }

// Multi sends to every notifier and joins the failures.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
