package snapshot

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/evdnx/tradecore/types"
)

// Risk is the reader-facing subset of the risk state.
type Risk struct {
	Halted        bool    `json:"halted"`
	HaltReason    string  `json:"halt_reason,omitempty"`
	PeakEquity    float64 `json:"peak_equity"`
	Drawdown      float64 `json:"drawdown"`
	DrawdownLimit float64 `json:"drawdown_limit"`
	LossStreak    int     `json:"loss_streak"`
	DailyProfit   float64 `json:"daily_profit"`
	Trades        int     `json:"trades"`
	RealisedPL    float64 `json:"realised_pl"`
}

// Status is the state published after every cycle. Readers see it at
// most one cycle late.
type Status struct {
	Time       time.Time                 `json:"time"`
	Cycle      int64                     `json:"cycle"`
	Strategy   string                    `json:"strategy"`
	Connected  bool                      `json:"connected"`
	Failures   int                       `json:"consecutive_failures"`
	Account    types.Account             `json:"account"`
	Positions  []types.Position          `json:"positions"`
	Risk       Risk                      `json:"risk"`
	Decisions  map[string]types.Decision `json:"decisions"`
	LastError  string                    `json:"last_error,omitempty"`
	Terminated bool                      `json:"terminated,omitempty"`
}

// Config selects the external status publishers.
type Config struct {
	Redis RedisConfig `yaml:"redis" env:", prefix=REDIS_"`
}

// Publisher pushes a status to an external reader.
type Publisher interface {
	Publish(ctx context.Context, s Status) error
}

// Store holds the last published status.
type Store struct {
	cur atomic.Pointer[Status]
}

func NewStore() *Store { return &Store{} }

// Set replaces the status. The caller must not modify s afterwards.
func (st *Store) Set(s Status) { st.cur.Store(&s) }

// Get returns the last status, false before the first cycle.
func (st *Store) Get() (Status, bool) {
	p := st.cur.Load()
	if p == nil {
		return Status{}, false
	}
	return *p, true
}

// Publish makes Store usable as a Publisher.
func (st *Store) Publish(_ context.Context, s Status) error {
	st.Set(s)
	return nil
}
