package schedule

import (
	"fmt"
	"time"
)

// ChainContext is installed by the scheduler when a reminder with
// max_chain > 0 fires; it is visible to the follow_up_chain tool for the
// duration of that single fire (spec §4.F).
type ChainContext struct {
	ReminderID  string
	ChainParent string
	Depth       int
	MaxChain    int
	Policy      Policy
	Message     string // inherited body for the follow-up
}

// IsFinal reports whether this is the last permitted check in the chain.
func (c ChainContext) IsFinal() bool {
	return c.Depth >= c.MaxChain
}

// FollowUp constructs the next reminder in the chain, inheriting policy and
// chain_parent. now anchors the new reminder's RunAt; callers pass their
// clock's current time rather than letting this package read the wall
// clock directly. Returns an error once the chain is exhausted.
func (c ChainContext) FollowUp(now time.Time, minutesFromNow float64) (Reminder, error) {
	if c.IsFinal() {
		return Reminder{}, fmt.Errorf("follow-up limit reached")
	}
	next := NewReminder(now, minutesDuration(minutesFromNow), c.Message, c.MaxChain, c.ChainParent, c.Policy)
	next.ChainDepth = c.Depth + 1
	return next, nil
}
