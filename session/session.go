package session

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Volatility classes are ordered: a larger value means a more volatile
// session.
type Volatility int

const (
	Low Volatility = iota
	Medium
	High
	VeryHigh
)

var volatilityNames = [...]string{"low", "medium", "high", "very_high"}

func (v Volatility) String() string {
	if v < 0 || int(v) >= len(volatilityNames) {
		return fmt.Sprintf("volatility(%d)", int(v))
	}
	return volatilityNames[v]
}

func (v Volatility) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (v *Volatility) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(string(b)), "-", "_"))
	for i, n := range volatilityNames {
		if n == name {
			*v = Volatility(i)
			return nil
		}
	}
	return fmt.Errorf("unknown volatility class %q", string(b))
}

// Clock is a UTC time of day written as HH:MM.
type Clock string

// Minutes parses the clock into minutes after midnight.
func (c Clock) Minutes() (int, error) {
	parts := strings.Split(string(c), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("clock %q: want HH:MM", string(c))
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("clock %q: bad hour", string(c))
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("clock %q: bad minute", string(c))
	}
	return h*60 + m, nil
}

// Window is a named time-of-day range. End before Start wraps midnight.
type Window struct {
	Name       string     `yaml:"name" validate:"required"`
	Start      Clock      `yaml:"start" validate:"required"`
	End        Clock      `yaml:"end" validate:"required"`
	Volatility Volatility `yaml:"volatility"`
}

// NewsWindow marks a recurring high-impact period. An empty Weekday means
// every day.
type NewsWindow struct {
	Weekday string `yaml:"weekday"`
	Start   Clock  `yaml:"start" validate:"required"`
	End     Clock  `yaml:"end" validate:"required"`
}

// Context describes where wall-clock time sits in the trading day.
type Context struct {
	Name       string
	Volatility Volatility
	Progress   float64 // fraction of the matched window elapsed, 0 for the fallback
	HighImpact bool
}

// FallbackName is reported when no window matches.
const FallbackName = "24/7"

type span struct {
	name       string
	start, end int
	vol        Volatility
}

func (s span) contains(min int) bool {
	if s.start <= s.end {
		return min >= s.start && min < s.end
	}
	return min >= s.start || min < s.end
}

func (s span) length() int {
	if s.start <= s.end {
		return s.end - s.start
	}
	return 24*60 - s.start + s.end
}

func (s span) elapsed(min int) int {
	if min >= s.start {
		return min - s.start
	}
	return 24*60 - s.start + min
}

type newsSpan struct {
	day   *time.Weekday
	inner span
}

// active reports whether the window covers min on weekday wd. The part of a
// wrapping window after midnight belongs to the day it started on.
func (n newsSpan) active(wd time.Weekday, min int) bool {
	if !n.inner.contains(min) {
		return false
	}
	if n.day == nil {
		return true
	}
	if n.inner.start > n.inner.end && min < n.inner.end {
		return *n.day == (wd+6)%7
	}
	return *n.day == wd
}

func compileWindows(ws []Window) ([]span, error) {
	out := make([]span, 0, len(ws))
	for _, w := range ws {
		start, err := w.Start.Minutes()
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", w.Name, err)
		}
		end, err := w.End.Minutes()
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", w.Name, err)
		}
		if start == end {
			return nil, fmt.Errorf("session %s: empty window", w.Name)
		}
		out = append(out, span{name: w.Name, start: start, end: end, vol: w.Volatility})
	}
	// More volatile windows take priority so they are never shadowed by an
	// overlapping calmer one. Ties keep configuration order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].vol > out[j].vol })
	return out, nil
}

func compileNews(ws []NewsWindow) ([]newsSpan, error) {
	out := make([]newsSpan, 0, len(ws))
	for _, w := range ws {
		start, err := w.Start.Minutes()
		if err != nil {
			return nil, fmt.Errorf("news window: %w", err)
		}
		end, err := w.End.Minutes()
		if err != nil {
			return nil, fmt.Errorf("news window: %w", err)
		}
		ns := newsSpan{inner: span{name: "news", start: start, end: end}}
		if w.Weekday != "" {
			d, err := parseWeekday(w.Weekday)
			if err != nil {
				return nil, err
			}
			ns.day = &d
		}
		out = append(out, ns)
	}
	return out, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// DefaultWindows is the standard forex session table in UTC.
func DefaultWindows() []Window {
	return []Window{
		{Name: "london_newyork_overlap", Start: "13:00", End: "16:00", Volatility: VeryHigh},
		{Name: "london", Start: "07:00", End: "16:00", Volatility: High},
		{Name: "newyork", Start: "13:00", End: "22:00", Volatility: High},
		{Name: "tokyo", Start: "00:00", End: "09:00", Volatility: Medium},
		{Name: "sydney", Start: "21:00", End: "06:00", Volatility: Low},
	}
}

// DefaultNews covers the usual scheduled releases.
func DefaultNews() []NewsWindow {
	return []NewsWindow{
		{Start: "12:25", End: "12:45"},
		{Weekday: "wednesday", Start: "17:55", End: "18:30"},
		{Weekday: "friday", Start: "12:15", End: "12:45"},
	}
}

// Adjustment is the per-cycle sizing and threshold modifier derived from the
// session and the strategy.
type Adjustment struct {
	LotMultiplier  float64
	TPMultiplier   float64
	SLMultiplier   float64
	ThresholdDelta float64
}

// Neutral is the identity adjustment.
func Neutral() Adjustment {
	return Adjustment{LotMultiplier: 1, TPMultiplier: 1, SLMultiplier: 1}
}

func (a Adjustment) String() string {
	return fmt.Sprintf("lot×%.2f tp×%.2f sl×%.2f Δ%+.1f", a.LotMultiplier, a.TPMultiplier, a.SLMultiplier, a.ThresholdDelta)
}
