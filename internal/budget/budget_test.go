package budget

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw-sched/internal/clock"
)

func TestLoad_RefillsProportionallyToElapsedTime(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	fc := clock.NewFake(start)
	dir := t.TempDir()
	b := New(dir, fc)

	s, err := b.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Available != DefaultCapacity {
		t.Fatalf("fresh budget available = %v, want %v", s.Available, DefaultCapacity)
	}

	if _, err := b.TryUse(); err != nil {
		t.Fatalf("TryUse: %v", err)
	}
	if _, err := b.TryUse(); err != nil {
		t.Fatalf("TryUse: %v", err)
	}
	// available is now capacity-2.

	fc.Advance(45 * time.Minute) // half of the 90-minute refill rate
	s, err = b.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := DefaultCapacity - 2 + 0.5
	if diff := s.Available - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("available after 45m = %v, want %v", s.Available, want)
	}
	if !s.LastRefill.Equal(fc.Now()) {
		t.Fatalf("LastRefill = %v, want %v", s.LastRefill, fc.Now())
	}
}

func TestLoad_NeverExceedsCapacity(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	fc := clock.NewFake(start)
	dir := t.TempDir()
	b := New(dir, fc)

	if _, err := b.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	fc.Advance(1000 * time.Hour)
	s, err := b.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Available != s.Capacity {
		t.Fatalf("available = %v, want capped at capacity %v", s.Available, s.Capacity)
	}
}

func TestTryUse_FailsWhenExhausted_StateUnchangedExceptRefill(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	fc := clock.NewFake(start)
	dir := t.TempDir()
	b := New(dir, fc)

	for i := 0; i < DefaultCapacity; i++ {
		ok, err := b.TryUse()
		if err != nil || !ok {
			t.Fatalf("TryUse #%d: ok=%v err=%v", i, ok, err)
		}
	}

	before, err := b.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if before.Available >= 1 {
		t.Fatalf("expected exhausted budget, available=%v", before.Available)
	}

	ok, err := b.TryUse()
	if err != nil {
		t.Fatalf("TryUse: %v", err)
	}
	if ok {
		t.Fatalf("TryUse should fail when available < 1")
	}

	after, err := b.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if after.Available != before.Available {
		t.Fatalf("available changed on failed TryUse: before=%v after=%v", before.Available, after.Available)
	}
	if after.DailyUsed != before.DailyUsed {
		t.Fatalf("daily_used changed on failed TryUse: before=%v after=%v", before.DailyUsed, after.DailyUsed)
	}
}

func TestRecordCritical_DoesNotConsumeRegularTokens(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	fc := clock.NewFake(start)
	dir := t.TempDir()
	b := New(dir, fc)

	before, err := b.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := b.RecordCritical(); err != nil {
		t.Fatalf("RecordCritical: %v", err)
	}
	after, err := b.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if after.Available != before.Available {
		t.Fatalf("RecordCritical consumed available tokens: before=%v after=%v", before.Available, after.Available)
	}
	if after.CriticalUsed != 1 {
		t.Fatalf("CriticalUsed = %d, want 1", after.CriticalUsed)
	}
	if after.DailyUsed != before.DailyUsed {
		t.Fatalf("RecordCritical bumped daily_used: before=%v after=%v", before.DailyUsed, after.DailyUsed)
	}
}

func TestDailyCounters_ResetOnNewDay(t *testing.T) {
	start := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	fc := clock.NewFake(start)
	dir := t.TempDir()
	b := New(dir, fc)

	if _, err := b.TryUse(); err != nil {
		t.Fatalf("TryUse: %v", err)
	}
	if err := b.RecordCritical(); err != nil {
		t.Fatalf("RecordCritical: %v", err)
	}

	fc.Advance(2 * time.Hour) // crosses midnight
	s, err := b.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.DailyUsed != 0 {
		t.Fatalf("DailyUsed after day rollover = %d, want 0", s.DailyUsed)
	}
	if s.CriticalUsed != 0 {
		t.Fatalf("CriticalUsed after day rollover = %d, want 0", s.CriticalUsed)
	}
}

func TestSetCapacity_ClampsAvailableAndPreservesOtherState(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	dir := t.TempDir()
	b := New(dir, fc)

	if err := b.RecordCritical(); err != nil {
		t.Fatalf("RecordCritical: %v", err)
	}
	if err := b.SetCapacity(2); err != nil {
		t.Fatalf("SetCapacity: %v", err)
	}
	s, err := b.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Capacity != 2 {
		t.Fatalf("Capacity = %v, want 2", s.Capacity)
	}
	if s.Available != 2 {
		t.Fatalf("Available = %v, want clamped to 2", s.Available)
	}
	if s.CriticalUsed != 1 {
		t.Fatalf("CriticalUsed = %d, want preserved at 1", s.CriticalUsed)
	}
}
