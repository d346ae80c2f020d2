package tradelog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/metrics"
	"github.com/evdnx/tradecore/types"
)

// Event says whether a record opens or closes a position.
type Event string

const (
	Open  Event = "open"
	Close Event = "close"
)

// Record is one line of the append-only trade log.
type Record struct {
	Time       time.Time  `json:"time"`
	Event      Event      `json:"event"`
	Ticket     int64      `json:"ticket"`
	Strategy   string     `json:"strategy,omitempty"`
	Symbol     string     `json:"symbol"`
	Side       types.Side `json:"side"`
	Lot        float64    `json:"lot"`
	Price      float64    `json:"price"`
	StopLoss   float64    `json:"sl"`
	TakeProfit float64    `json:"tp"`
	Profit     float64    `json:"profit"`
}

// Opened builds the record of an accepted order.
func Opened(ticket int64, strategy types.StrategyID, req types.OrderRequest, at time.Time) Record {
	return Record{
		Time: at.UTC(), Event: Open, Ticket: ticket, Strategy: strategy.String(),
		Symbol: req.Symbol, Side: req.Side, Lot: req.Lot, Price: req.Entry,
		StopLoss: req.StopLoss, TakeProfit: req.TakeProfit,
	}
}

// Closed builds the record of a position that left the book with its
// last observed profit.
func Closed(p types.Position, strategy string, at time.Time) Record {
	return Record{
		Time: at.UTC(), Event: Close, Ticket: p.Ticket, Strategy: strategy,
		Symbol: p.Symbol, Side: p.Side, Lot: p.Lot, Price: p.OpenPrice,
		StopLoss: p.StopLoss, TakeProfit: p.TakeProfit, Profit: p.Profit,
	}
}

// Sink stores trade records. Append failures are reported to the caller
// and never retried by the sink.
type Sink interface {
	Append(ctx context.Context, r Record) error
	Close() error
}

// Config enables and tunes the sinks. Several may run at once.
type Config struct {
	File       FileConfig       `yaml:"file" env:", prefix=FILE_"`
	Kafka      KafkaConfig      `yaml:"kafka" env:", prefix=KAFKA_"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse" env:", prefix=CLICKHOUSE_"`
}

// Named pairs a sink with the label used in logs and metrics.
type Named struct {
	Name string
	Sink Sink
}

// Multi appends to every sink. One failing sink does not stop the others;
// failures are logged, counted and joined.
type Multi struct {
	sinks []Named
	log   logger.Logger
}

func NewMulti(log logger.Logger, sinks ...Named) *Multi {
	if log == nil {
		log = logger.NewNop()
	}
	return &Multi{sinks: sinks, log: log}
}

func (m *Multi) Len() int { return len(m.sinks) }

func (m *Multi) Append(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sink.Append(ctx, r); err != nil {
			metrics.TradeLogFailures.WithLabelValues(s.Name).Inc()
			m.log.Error("tradelog_append_failed",
				logger.String("sink", s.Name),
				logger.String("symbol", r.Symbol),
				logger.Int64("ticket", r.Ticket),
				logger.String("event", string(r.Event)),
				logger.Err(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
