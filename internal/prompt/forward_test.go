package prompt

import (
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw-sched/internal/schedule"
)

func testPathOf(kind, id string) string {
	return "/state/" + kind + "s/" + id + ".md"
}

func TestBuildForwardSchedule_IncludesThisTaskAndUpcomingReminder(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	reminders := []schedule.Reminder{
		{ID: "rem1", Message: "check deploy", RunAt: now, Policy: schedule.Policy{Background: true}},
		{ID: "rem2", Message: "check logs", RunAt: now.Add(time.Hour), Policy: schedule.Policy{Background: true}},
	}
	out := BuildForwardSchedule(now, "rem1", nil, reminders, testPathOf)

	if len(out) != 2 {
		t.Fatalf("entries = %d, want 2: %+v", len(out), out)
	}
	if out[0].Tag != "this task" {
		t.Fatalf("firing entry tag = %q, want %q", out[0].Tag, "this task")
	}
	if out[1].Path != "/state/reminders/rem2.md" {
		t.Fatalf("path = %q", out[1].Path)
	}
}

func TestBuildForwardSchedule_ExcludesForegroundEntries(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	reminders := []schedule.Reminder{
		{ID: "rem1", Message: "not background", RunAt: now.Add(time.Hour), Policy: schedule.Policy{Background: false}},
	}
	out := BuildForwardSchedule(now, "", nil, reminders, testPathOf)
	if len(out) != 0 {
		t.Fatalf("expected foreground reminders to be excluded, got %+v", out)
	}
}

func TestBuildForwardSchedule_RecentFireWithinGraceIsTagged(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	routine := schedule.Routine{ID: "r1", Cron: "0 9 * * *", Message: "standup", Policy: schedule.Policy{Background: true}}
	out := BuildForwardSchedule(now.Add(10*time.Minute), "", []schedule.Routine{routine}, nil, testPathOf)

	found := false
	for _, e := range out {
		if e.Tag == "just fired" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a 'just fired' tag within the recent grace window, got %+v", out)
	}
}

func TestBuildForwardSchedule_SilentWhenAllowPingFalse(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	reminders := []schedule.Reminder{
		{ID: "rem1", Message: "quiet task", RunAt: now.Add(time.Hour), Policy: schedule.Policy{Background: true, AllowPing: false}},
	}
	out := BuildForwardSchedule(now, "", nil, reminders, testPathOf)
	if len(out) != 1 || !out[0].Silent {
		t.Fatalf("expected a silent entry, got %+v", out)
	}
}

func TestBuildForwardSchedule_FewerThanMinimumKeepsAllWithinMax(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	reminders := []schedule.Reminder{
		{ID: "rem1", RunAt: now.Add(11 * time.Hour), Policy: schedule.Policy{Background: true}},
	}
	out := BuildForwardSchedule(now, "", nil, reminders, testPathOf)
	if len(out) != 1 {
		t.Fatalf("a single forward candidate under the minimum should still be kept, got %+v", out)
	}
}

func TestBuildForwardSchedule_BeyondMaxWindowExcluded(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	reminders := []schedule.Reminder{
		{ID: "rem1", RunAt: now.Add(13 * time.Hour), Policy: schedule.Policy{Background: true}},
	}
	out := BuildForwardSchedule(now, "", nil, reminders, testPathOf)
	if len(out) != 0 {
		t.Fatalf("entries beyond forwardMax should be excluded, got %+v", out)
	}
}

func TestBuildForwardSchedule_ManyCandidatesPrefersWithinBaseWindow(t *testing.T) {
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	var reminders []schedule.Reminder
	// 3 candidates within the 3h base window meet the minForward floor, so
	// the later ones beyond the base window are trimmed even though they're
	// still within forwardMax.
	for i := 1; i <= 3; i++ {
		reminders = append(reminders, schedule.Reminder{
			ID: "near" + string(rune('0'+i)), RunAt: now.Add(time.Duration(i) * time.Hour), Policy: schedule.Policy{Background: true},
		})
	}
	reminders = append(reminders, schedule.Reminder{ID: "far1", RunAt: now.Add(10 * time.Hour), Policy: schedule.Policy{Background: true}})

	out := BuildForwardSchedule(now, "", nil, reminders, testPathOf)
	if len(out) != 3 {
		t.Fatalf("expected only the 3 within-base-window entries, got %d: %+v", len(out), out)
	}
}

func TestFormatForwardSchedule_EmptyList(t *testing.T) {
	out := FormatForwardSchedule(nil, time.UTC)
	if out != "No other background tasks scheduled soon." {
		t.Fatalf("got %q", out)
	}
}

func TestFormatForwardSchedule_IncludesDescriptionPathSilentAndTag(t *testing.T) {
	entries := []ForwardEntry{
		{Time: time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC), Label: "standup", Description: "daily check-in", Path: "/x/y.md", Silent: true, Tag: "this task"},
	}
	out := FormatForwardSchedule(entries, time.UTC)
	for _, want := range []string{"9:30 am", "standup", "daily check-in", "/x/y.md", "(silent)", "this task"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestTagFor(t *testing.T) {
	if got := tagFor("a", "a", false); got != "this task" {
		t.Fatalf("tagFor self = %q", got)
	}
	if got := tagFor("a", "b", true); got != "just fired" {
		t.Fatalf("tagFor recent = %q", got)
	}
	if got := tagFor("a", "b", false); got != "" {
		t.Fatalf("tagFor plain forward = %q, want empty", got)
	}
}
