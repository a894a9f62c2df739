// Package prompt builds the exact text an agent run receives for a given
// fire: the leading tag, the background preamble (ping rules, reporting
// mode, budget, forward schedule, tool restrictions), the chain-context
// paragraph, and the entry body (spec §4.I).
package prompt

import (
	"fmt"
	"sort"
	"time"

	"github.com/nextlevelbuilder/goclaw-sched/internal/schedule"
)

const (
	forwardBase  = 3 * time.Hour
	forwardMax   = 12 * time.Hour
	recentGrace  = 15 * time.Minute
	minForward   = 3
)

// ForwardEntry is one row of the forward-schedule lookahead.
type ForwardEntry struct {
	Time        time.Time
	Label       string
	Description string
	Path        string
	Tag         string // "this task", "just fired", or ""
	Silent      bool
}

// candidate is an internal timestamp+payload pair before partitioning.
type candidate struct {
	t      time.Time
	entry  ForwardEntry
}

// BuildForwardSchedule computes the lookahead list visible to a firing
// background task so it can budget pings against sibling tasks.
//
// firingID identifies the entry currently firing (tagged "this task");
// pathOf(kind, id) builds each entry's path for display.
func BuildForwardSchedule(
	now time.Time,
	firingID string,
	routines []schedule.Routine,
	reminders []schedule.Reminder,
	pathOf func(kind, id string) string,
) []ForwardEntry {
	var candidates []candidate

	for _, r := range routines {
		if !r.Policy.Background {
			continue
		}
		if next, err := schedule.NextFire(r.Cron, now); err == nil && !next.After(now.Add(forwardMax)) {
			candidates = append(candidates, candidate{t: next, entry: ForwardEntry{
				Time: next, Label: r.Description, Description: r.Message, Path: pathOf("routine", r.ID),
				Silent: !r.Policy.AllowPing, Tag: tagFor(r.ID, firingID, false),
			}})
		}
		if prev, err := schedule.PrevFire(r.Cron, now); err == nil && !prev.Before(now.Add(-recentGrace)) && !prev.After(now) {
			candidates = append(candidates, candidate{t: prev, entry: ForwardEntry{
				Time: prev, Label: r.Description, Description: r.Message, Path: pathOf("routine", r.ID),
				Silent: !r.Policy.AllowPing, Tag: tagFor(r.ID, firingID, true),
			}})
		}
	}

	windowStart := now.Add(-recentGrace)
	windowEnd := now.Add(forwardMax)
	for _, rem := range reminders {
		if !rem.Policy.Background {
			continue
		}
		if rem.RunAt.Before(windowStart) || rem.RunAt.After(windowEnd) {
			continue
		}
		candidates = append(candidates, candidate{t: rem.RunAt, entry: ForwardEntry{
			Time: rem.RunAt, Label: rem.Description, Description: rem.Message, Path: pathOf("reminder", rem.ID),
			Silent: !rem.Policy.AllowPing, Tag: tagFor(rem.ID, firingID, rem.RunAt.Before(now) || rem.RunAt.Equal(now)),
		}})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].t.Before(candidates[j].t) })

	var recent, forward []candidate
	for _, c := range candidates {
		if !c.t.After(now) {
			recent = append(recent, c)
		} else {
			forward = append(forward, c)
		}
	}

	var selectedForward []candidate
	switch {
	case len(forward) < minForward:
		selectedForward = forward
	default:
		var withinBase []candidate
		for _, c := range forward {
			if !c.t.After(now.Add(forwardBase)) {
				withinBase = append(withinBase, c)
			}
		}
		if len(withinBase) >= minForward {
			selectedForward = withinBase
		} else {
			selectedForward = forward[:minForward]
		}
	}

	out := make([]ForwardEntry, 0, len(recent)+len(selectedForward))
	for _, c := range recent {
		out = append(out, c.entry)
	}
	for _, c := range selectedForward {
		out = append(out, c.entry)
	}
	return out
}

func tagFor(id, firingID string, recent bool) string {
	if id == firingID {
		return "this task"
	}
	if recent {
		return "just fired"
	}
	return ""
}

// FormatForwardSchedule renders entries as the lines shown in the preamble.
func FormatForwardSchedule(entries []ForwardEntry, loc *time.Location) string {
	if len(entries) == 0 {
		return "No other background tasks scheduled soon."
	}
	out := ""
	for _, e := range entries {
		line := fmt.Sprintf("- %s — %s", e.Time.In(loc).Format("3:04 pm"), e.Label)
		if e.Description != "" {
			line += fmt.Sprintf(" (%s)", e.Description)
		}
		line += fmt.Sprintf(" [%s]", e.Path)
		if e.Silent {
			line += " (silent)"
		}
		if e.Tag != "" {
			line += fmt.Sprintf(" — %s", e.Tag)
		}
		out += line + "\n"
	}
	return out
}
