package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/evdnx/tradecore/logger"
	"github.com/evdnx/tradecore/metrics"
	"github.com/evdnx/tradecore/types"
)

// Reason names why trading stopped or positions were closed.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonDrawdown     Reason = "drawdown"
	ReasonLossStreak   Reason = "loss_streak"
	ReasonMargin       Reason = "margin"
	ReasonDailyLoss    Reason = "daily_loss"
	ReasonProfitTarget Reason = "profit_target"
)

// daily reports whether the halt clears on the next trading day.
func (r Reason) daily() bool { return r == ReasonDailyLoss || r == ReasonProfitTarget }

// liquidates reports whether the halt keeps closing open positions.
func (r Reason) liquidates() bool { return r == ReasonDrawdown || r == ReasonProfitTarget }

// Config holds the account-level limits. Fractions are of equity; a zero
// DailyProfitTarget disables the profit lock.
type Config struct {
	MaxDrawdown          float64 `yaml:"max_drawdown" default:"0.05" validate:"gt=0,lt=1"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses" default:"5" validate:"gte=1"`
	CriticalMarginLevel  float64 `yaml:"critical_margin_level" default:"150" validate:"gte=0"`
	RecoverMarginLevel   float64 `yaml:"recover_margin_level" default:"300" validate:"gtefield=CriticalMarginLevel"`
	MaxDailyLoss         float64 `yaml:"max_daily_loss" default:"0.05" validate:"gt=0,lt=1"`
	DailyProfitTarget    float64 `yaml:"daily_profit_target" default:"0.10" validate:"gte=0"`
	ProfitProtectTrigger float64 `yaml:"profit_protect_trigger" default:"0.02" validate:"gte=0"`
	ProfitProtectFloor   float64 `yaml:"profit_protect_floor" default:"0.005" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		MaxDrawdown: 0.05, MaxConsecutiveLosses: 5,
		CriticalMarginLevel: 150, RecoverMarginLevel: 300,
		MaxDailyLoss: 0.05, DailyProfitTarget: 0.10,
		ProfitProtectTrigger: 0.02, ProfitProtectFloor: 0.005,
	}
}

// Liquidator closes positions on behalf of the manager.
type Liquidator interface {
	ClosePosition(ctx context.Context, ticket int64) error
}

// State is the session risk state. Copies returned by Snapshot are safe
// to read without synchronisation.
type State struct {
	StartingBalance float64
	Equity          float64
	PeakEquity      float64
	DrawdownBase    float64 // drawdown reference; follows the peak, lowered by ResetHalt
	DayStartEquity  float64
	Day             time.Time
	LossStreak      int
	DailyTrades     int
	DailyProfit     float64
	Halted          bool
	HaltReason      Reason
	HaltedAt        time.Time

	Trades      int
	Wins        int
	Losses      int
	GrossProfit float64
	GrossLoss   float64
	MaxDrawdown float64 // worst drawdown seen this session
	RealisedPL  float64
}

// Drawdown is the current fraction below the drawdown reference.
func (s State) Drawdown() float64 {
	if s.DrawdownBase <= 0 {
		return 0
	}
	return math.Max(0, (s.DrawdownBase-s.Equity)/s.DrawdownBase)
}

// Verdict is the outcome of one tick.
type Verdict struct {
	CanTrade      bool
	Reason        Reason  // set when this tick halted trading or closed positions
	Closed        []int64 // tickets the manager closed
	Drawdown      float64
	DrawdownLimit float64
	MarginLevel   float64
}

// Manager guards the session risk state.
type Manager struct {
	mu    sync.Mutex
	cfg   Config
	state State
	liq   Liquidator
	log   logger.Logger
}

func NewManager(cfg Config, liq Liquidator, log logger.Logger) (*Manager, error) {
	if cfg.MaxDrawdown <= 0 || cfg.MaxDailyLoss <= 0 {
		return nil, fmt.Errorf("risk: drawdown and daily loss limits must be positive")
	}
	if cfg.MaxConsecutiveLosses < 1 {
		return nil, fmt.Errorf("risk: max consecutive losses must be >= 1")
	}
	if cfg.RecoverMarginLevel < cfg.CriticalMarginLevel {
		return nil, fmt.Errorf("risk: recover margin level below critical level")
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{cfg: cfg, liq: liq, log: log}, nil
}

// StartSession resets the state to acct.
func (m *Manager) StartSession(acct types.Account, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eq := acct.Equity
	if eq <= 0 {
		eq = acct.Balance
	}
	m.state = State{
		StartingBalance: acct.Balance,
		Equity:          eq,
		PeakEquity:      eq,
		DrawdownBase:    eq,
		DayStartEquity:  eq,
		Day:             day(now),
	}
	m.log.Info("risk_session_started",
		logger.Float64("balance", acct.Balance),
		logger.Float64("equity", eq),
	)
}

// CanTrade reports whether trading is allowed. It never changes state.
func (m *Manager) CanTrade() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.state.Halted
}

// Check is CanTrade as an error, for use as an order gate veto.
func (m *Manager) Check() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Halted {
		return fmt.Errorf("%w: %s", types.ErrRiskHalt, m.state.HaltReason)
	}
	return nil
}

func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RecordTrade books a closed trade's realised profit.
func (m *Manager) RecordTrade(profit float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.state
	s.Trades++
	s.DailyTrades++
	s.DailyProfit += profit
	s.RealisedPL += profit
	switch {
	case profit < 0:
		s.Losses++
		s.LossStreak++
		s.GrossLoss += -profit
	case profit > 0:
		s.Wins++
		s.LossStreak = 0
		s.GrossProfit += profit
	}
}

// ResetHalt clears any halt manually. Drawdown is measured from the
// current equity again and the loss streak is forgotten. Peak equity is
// kept.
func (m *Manager) ResetHalt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log.Info("risk_halt_reset", logger.String("reason", string(m.state.HaltReason)))
	m.state.Halted = false
	m.state.HaltReason = ReasonNone
	m.state.LossStreak = 0
	m.state.DrawdownBase = m.state.Equity
}

// SetLimits replaces the drawdown limit and the daily profit target for
// the next tick. Non-positive values keep the current setting.
func (m *Manager) SetLimits(maxDrawdown, profitTarget float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if maxDrawdown > 0 && maxDrawdown < 1 {
		m.cfg.MaxDrawdown = maxDrawdown
	}
	if profitTarget > 0 {
		m.cfg.DailyProfitTarget = profitTarget
	}
}

// DrawdownLimit is the effective drawdown limit at the given peak. Once
// session profit at the peak exceeds the protection trigger the limit
// shrinks in proportion, never below the floor.
func (m *Manager) DrawdownLimit(s State) float64 {
	limit := m.cfg.MaxDrawdown
	if s.StartingBalance <= 0 || m.cfg.ProfitProtectTrigger <= 0 {
		return limit
	}
	p := (s.PeakEquity - s.StartingBalance) / s.StartingBalance
	if p > m.cfg.ProfitProtectTrigger {
		limit = math.Max(m.cfg.ProfitProtectFloor, m.cfg.MaxDrawdown*m.cfg.ProfitProtectTrigger/p)
	}
	return math.Min(limit, m.cfg.MaxDrawdown)
}

// OnCycleTick updates the state from the account and applies the gates
// in order: drawdown, loss streak, margin, daily loss, daily profit.
// Positions chosen for closing are closed after the state lock is
// released; close failures are joined into the returned error.
func (m *Manager) OnCycleTick(ctx context.Context, acct types.Account, positions []types.Position, now time.Time) (Verdict, error) {
	v, closeList := m.evaluate(acct, positions, now)
	if len(closeList) == 0 {
		return v, nil
	}
	var errs []error
	for _, t := range closeList {
		if m.liq == nil {
			errs = append(errs, fmt.Errorf("risk: no liquidator to close %d", t))
			continue
		}
		if err := m.liq.ClosePosition(ctx, t); err != nil {
			m.log.Error("risk_close_failed", logger.Int64("ticket", t), logger.String("reason", string(v.Reason)), logger.Err(err))
			errs = append(errs, fmt.Errorf("close %d: %w", t, err))
			continue
		}
		v.Closed = append(v.Closed, t)
	}
	return v, errors.Join(errs...)
}

func (m *Manager) evaluate(acct types.Account, positions []types.Position, now time.Time) (Verdict, []int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.state
	c := m.cfg

	eq := acct.Equity
	if eq <= 0 {
		eq = acct.Balance
	}
	if s.PeakEquity == 0 {
		s.StartingBalance, s.PeakEquity, s.DrawdownBase, s.DayStartEquity, s.Day = acct.Balance, eq, eq, eq, day(now)
	}
	if d := day(now); d.After(s.Day) {
		m.rollover(d, eq)
	}
	s.Equity = eq
	if eq > s.PeakEquity {
		s.PeakEquity = eq
	}
	if eq > s.DrawdownBase {
		s.DrawdownBase = eq
	}
	dd := s.Drawdown()
	if dd > s.MaxDrawdown {
		s.MaxDrawdown = dd
	}
	limit := m.DrawdownLimit(*s)
	metrics.EquityGauge.Set(eq)
	metrics.DrawdownGauge.Set(dd)
	metrics.PositionsOpen.Set(float64(len(positions)))

	v := Verdict{Drawdown: dd, DrawdownLimit: limit, MarginLevel: acct.MarginLevel}

	// (a) drawdown from peak, checked under any halt
	if dd >= limit {
		if s.HaltReason != ReasonDrawdown {
			m.halt(ReasonDrawdown, now, logger.Float64("drawdown", dd), logger.Float64("limit", limit))
		}
		v.Reason = ReasonDrawdown
		return v, tickets(positions)
	}
	if s.Halted {
		// positions left over from a failed liquidation are retried
		if s.HaltReason.liquidates() && len(positions) > 0 {
			v.Reason = s.HaltReason
			return v, tickets(positions)
		}
		return v, nil
	}

	// (b) loss streak
	if s.LossStreak >= c.MaxConsecutiveLosses {
		m.halt(ReasonLossStreak, now, logger.Int("loss_streak", s.LossStreak))
		v.Reason = ReasonLossStreak
		return v, nil
	}

	// (c) margin: close the worst losers until the projected level recovers
	var closeList []int64
	if acct.Margin > 0 && acct.MarginLevel > 0 && acct.MarginLevel < c.CriticalMarginLevel {
		closeList = marginCloses(acct, positions, c.RecoverMarginLevel)
		v.Reason = ReasonMargin
		metrics.RiskHalts.WithLabelValues(string(ReasonMargin)).Inc()
		m.log.Warn("risk_margin_critical",
			logger.Float64("margin_level", acct.MarginLevel),
			logger.Int("closing", len(closeList)),
		)
	}

	// (d) daily loss
	if s.DayStartEquity > 0 {
		change := (eq - s.DayStartEquity) / s.DayStartEquity
		if -change >= c.MaxDailyLoss {
			m.halt(ReasonDailyLoss, now, logger.Float64("daily_change", change))
			v.Reason = ReasonDailyLoss
			return v, closeList
		}
		// (e) daily profit lock
		if c.DailyProfitTarget > 0 && change >= c.DailyProfitTarget {
			m.halt(ReasonProfitTarget, now, logger.Float64("daily_change", change))
			v.Reason = ReasonProfitTarget
			return v, tickets(positions)
		}
	}
	v.CanTrade = true
	return v, closeList
}

func (m *Manager) halt(r Reason, now time.Time, fields ...logger.Field) {
	m.state.Halted = true
	m.state.HaltReason = r
	m.state.HaltedAt = now
	metrics.RiskHalts.WithLabelValues(string(r)).Inc()
	m.log.Error("risk_halt", append([]logger.Field{logger.String("reason", string(r)), logger.Float64("equity", m.state.Equity)}, fields...)...)
}

func (m *Manager) rollover(d time.Time, eq float64) {
	s := &m.state
	m.log.Info("risk_day_rollover",
		logger.Time("day", d),
		logger.Int("daily_trades", s.DailyTrades),
		logger.Float64("daily_profit", s.DailyProfit),
	)
	s.Day = d
	s.DayStartEquity = eq
	s.DailyTrades = 0
	s.DailyProfit = 0
	if s.Halted && s.HaltReason.daily() {
		s.Halted = false
		s.HaltReason = ReasonNone
	}
}

func tickets(ps []types.Position) []int64 {
	out := make([]int64, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Ticket)
	}
	return out
}

// marginCloses picks losing positions, worst first, until the margin
// level projected from the remaining lots reaches target.
func marginCloses(acct types.Account, ps []types.Position, target float64) []int64 {
	losers := make([]types.Position, 0, len(ps))
	totalLots := 0.0
	for _, p := range ps {
		totalLots += p.Lot
		if p.Profit < 0 {
			losers = append(losers, p)
		}
	}
	if totalLots <= 0 {
		return nil
	}
	sort.SliceStable(losers, func(i, j int) bool { return losers[i].Profit < losers[j].Profit })
	var out []int64
	remaining := totalLots
	for _, p := range losers {
		out = append(out, p.Ticket)
		remaining -= p.Lot
		if remaining <= 0 {
			break
		}
		margin := acct.Margin * remaining / totalLots
		if acct.Equity/margin*100 >= target {
			break
		}
	}
	return out
}

func day(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
