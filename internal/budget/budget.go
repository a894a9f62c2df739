// Package budget implements the leaky/refill ping-notification bucket
// described in spec §3.2/§4.B, ported line-for-line from the original
// program's ping_budget.py.
package budget

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goclaw-sched/internal/clock"
	"github.com/nextlevelbuilder/goclaw-sched/internal/storage"
)

const (
	DefaultCapacity        = 5
	DefaultRefillRateMinutes = 90
)

// State is the persisted record.
type State struct {
	Capacity           float64   `json:"capacity"`
	Available          float64   `json:"available"`
	RefillRateMinutes  int       `json:"refill_rate_minutes"`
	LastRefill         time.Time `json:"last_refill"`
	CriticalUsed       int       `json:"critical_used"`
	CriticalResetDate  string    `json:"critical_reset_date"`
	DailyUsed          int       `json:"daily_used"`
	DailyUsedResetDate string    `json:"daily_used_reset"`
}

// Budget wraps the persisted State with atomic load/save semantics.
type Budget struct {
	path  string
	clock clock.Clock
}

func New(stateDir string, c clock.Clock) *Budget {
	return &Budget{path: filepath.Join(stateDir, "ping_budget.json"), clock: c}
}

func today(c clock.Clock) string {
	return c.Now().Format("2006-01-02")
}

func defaultState(c clock.Clock) State {
	now := c.Now()
	return State{
		Capacity:           DefaultCapacity,
		Available:          DefaultCapacity,
		RefillRateMinutes:  DefaultRefillRateMinutes,
		LastRefill:         now,
		CriticalResetDate:  today(c),
		DailyUsedResetDate: today(c),
	}
}

// load reads the state, applies refill and daily resets, and returns it
// without saving (callers that intend to mutate must save afterwards).
func (b *Budget) load() (State, error) {
	s := defaultState(b.clock)
	ok, err := storage.ReadJSON(b.path, &s)
	if err != nil {
		return State{}, err
	}
	if !ok {
		return s, nil
	}
	return b.refill(s), nil
}

func (b *Budget) refill(s State) State {
	now := b.clock.Now()
	if s.RefillRateMinutes > 0 {
		elapsedMinutes := now.Sub(s.LastRefill).Minutes()
		if elapsedMinutes > 0 {
			s.Available = math.Min(s.Capacity, s.Available+elapsedMinutes/float64(s.RefillRateMinutes))
		}
	}
	s.LastRefill = now

	t := today(b.clock)
	if s.CriticalResetDate != t {
		s.CriticalUsed = 0
		s.CriticalResetDate = t
	}
	if s.DailyUsedResetDate != t {
		s.DailyUsed = 0
		s.DailyUsedResetDate = t
	}
	return s
}

func (b *Budget) save(s State) error {
	return storage.WriteJSON(b.path, s)
}

// Load returns the current state after applying refill/reset, persisting
// the refreshed state.
func (b *Budget) Load() (State, error) {
	s, err := b.load()
	if err != nil {
		return State{}, err
	}
	if err := b.save(s); err != nil {
		return State{}, err
	}
	return s, nil
}

// TryUse attempts to consume one non-critical ping token.
func (b *Budget) TryUse() (bool, error) {
	s, err := b.load()
	if err != nil {
		return false, err
	}
	if s.Available < 1 {
		if err := b.save(s); err != nil {
			return false, err
		}
		return false, nil
	}
	s.Available--
	s.DailyUsed++
	return true, b.save(s)
}

// RecordCritical increments critical_used without touching available/daily_used.
func (b *Budget) RecordCritical() error {
	s, err := b.load()
	if err != nil {
		return err
	}
	s.CriticalUsed++
	return b.save(s)
}

// SetCapacity updates capacity, preserving other state.
func (b *Budget) SetCapacity(n float64) error {
	s, err := b.load()
	if err != nil {
		return err
	}
	s.Capacity = n
	if s.Available > n {
		s.Available = n
	}
	return b.save(s)
}

// SetRefillRate updates the refill rate, preserving other state.
func (b *Budget) SetRefillRate(minutes int) error {
	s, err := b.load()
	if err != nil {
		return err
	}
	s.RefillRateMinutes = minutes
	return b.save(s)
}

// MinutesToNextRefill returns how long until Available increases by 1 whole
// token, given the current fractional state.
func (s State) MinutesToNextRefill() float64 {
	if s.RefillRateMinutes <= 0 || s.Available >= s.Capacity {
		return 0
	}
	frac := s.Available - math.Floor(s.Available)
	remaining := 1 - frac
	if frac == 0 {
		remaining = 1
	}
	return remaining * float64(s.RefillRateMinutes)
}

// StatusString is the short human summary used inline in the preamble.
func (s State) StatusString() string {
	base := fmt.Sprintf("%.0f/%.0f available (refills 1 every %d min", s.Available, s.Capacity, s.RefillRateMinutes)
	if s.Available < s.Capacity {
		return fmt.Sprintf("%s, next in %.0f min)", base, s.MinutesToNextRefill())
	}
	return base + ")"
}

// FullStatusString additionally reports today's totals, omitting whichever
// of daily/critical is zero rather than always appending both.
func (s State) FullStatusString() string {
	status := s.StatusString()
	parts := []string{status}
	if s.DailyUsed != 0 {
		parts = append(parts, fmt.Sprintf("%d used today", s.DailyUsed))
	}
	if s.CriticalUsed != 0 {
		parts = append(parts, fmt.Sprintf("%d critical", s.CriticalUsed))
	}
	if len(parts) == 1 {
		return status
	}
	return strings.Join(parts, ", ")
}
