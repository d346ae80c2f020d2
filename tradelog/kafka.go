package tradelog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED, overwrite"`
	Brokers      []string      `yaml:"brokers" env:"BROKERS, overwrite"`
	Topic        string        `yaml:"topic" env:"TOPIC, overwrite" default:"tradecore.trades"`
	RequiredAcks int           `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3" validate:"gte=1"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"100ms"`
}

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes records keyed by symbol so one symbol's trades
// stay ordered within a partition.
type KafkaSink struct {
	w     messageWriter
	topic string
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: brokers are required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		BatchTimeout: cfg.BatchTimeout,
	}
	return &KafkaSink{w: w, topic: cfg.Topic}, nil
}

func (s *KafkaSink) Append(ctx context.Context, r Record) error {
	v, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(r.Symbol),
		Value: v,
		Time:  r.Time,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(r.Event)},
			{Key: "ticket", Value: []byte(strconv.FormatInt(r.Ticket, 10))},
		},
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write %s: %w", s.topic, err)
	}
	return nil
}

func (s *KafkaSink) Close() error { return s.w.Close() }
