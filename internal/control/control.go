// Package control implements the CLI-to-running-process escape hatch for
// the permission arbiter (SPEC_FULL §6.6): `approve <tool-name>` and
// `reset-approvals` are separate process invocations with no direct handle
// on the live Arbiter, so they drop a command record in a watched directory
// using the same crash-safe storage.Store + atomic rename pattern already
// used for routines/reminders/webhooks, and the running orchestrator drains
// and applies it on its next control poll, which runs at the scheduler's
// poll interval.
package control

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/nextlevelbuilder/goclaw-sched/internal/storage"
)

const (
	ActionApprove = "approve"
	ActionReset   = "reset"
)

// Command is one pending approve/reset-approvals instruction.
type Command struct {
	ID     string
	Action string
	Tool   string // populated only for ActionApprove
}

// Store is the "control/" directory drop-box.
type Store struct {
	s *storage.Store
}

func NewStore(dir string) (*Store, error) {
	s, err := storage.NewStore(dir, false)
	if err != nil {
		return nil, err
	}
	return &Store{s: s}, nil
}

func (s *Store) toRecord(c Command) storage.Record {
	rec := storage.Record{ID: c.ID, Header: []storage.HeaderField{
		{Key: "action", Value: c.Action},
	}}
	if c.Tool != "" {
		rec.Header = append(rec.Header, storage.HeaderField{Key: "tool", Value: c.Tool})
	}
	return rec
}

// Approve drops a command that session-allows toolName on the live arbiter.
func (s *Store) Approve(toolName string) error {
	id := uuid.NewString()
	return s.s.Write(s.toRecord(Command{ID: id, Action: ActionApprove, Tool: toolName}), id)
}

// ResetApprovals drops a command that clears session_allow and cancels all
// pending approvals on the live arbiter.
func (s *Store) ResetApprovals() error {
	id := uuid.NewString()
	return s.s.Write(s.toRecord(Command{ID: id, Action: ActionReset}), id)
}

// Drain returns every pending command and removes it from the directory, so
// each is applied exactly once.
func (s *Store) Drain() ([]Command, error) {
	recs, err := s.s.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]Command, 0, len(recs))
	for _, rec := range recs {
		action, _ := rec.Get("action")
		tool, _ := rec.Get("tool")
		out = append(out, Command{ID: rec.ID, Action: action, Tool: tool})
	}
	for _, c := range out {
		if err := s.s.Remove(c.ID); err != nil {
			return out, fmt.Errorf("control: remove drained command %s: %w", c.ID, err)
		}
	}
	return out, nil
}

// Dir returns the backing directory of the drop-box.
func (s *Store) Dir() string { return s.s.Dir() }
