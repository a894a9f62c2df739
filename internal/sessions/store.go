// Package sessions persists the single owner's session identity (spec
// §3.5, §6.4) across restarts and appends the append-only session-history
// event log (created/compacted/forked/promoted). This is the module's own
// `sessions.json` + `session_history.jsonl` — unrelated to, and independent
// of, whatever session bookkeeping the upstream agent SDK keeps internally.
package sessions

import (
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/goclaw-sched/internal/clock"
	"github.com/nextlevelbuilder/goclaw-sched/internal/storage"
)

// Identity is the on-disk shape of sessions.json.
type Identity struct {
	SessionID string `json:"session_id"`
}

// Event is one session_history.jsonl line (spec §3.5).
type Event struct {
	SessionID       string    `json:"session_id"`
	ParentSessionID string    `json:"parent_session_id,omitempty"`
	Event           string    `json:"event"` // created, compacted, forked, promoted
	Timestamp       time.Time `json:"timestamp"`
}

// Mirror optionally duplicates history events to a secondary backend (the
// Postgres mirror, spec SPEC_FULL §3.7). Best-effort: the JSONL file is
// always the source of truth, per the Open Question resolution in spec §9.
type Mirror interface {
	Insert(Event) error
}

// Store owns sessions.json and session_history.jsonl for the one owner.
type Store struct {
	identityPath string
	historyPath  string
	clock        clock.Clock
	mirror       Mirror
}

func NewStore(identityPath, historyPath string, c clock.Clock, mirror Mirror) *Store {
	return &Store{identityPath: identityPath, historyPath: historyPath, clock: c, mirror: mirror}
}

// Load resumes the last persisted session id, if any (spec §4.L "On ready").
func (s *Store) Load() (string, bool) {
	var id Identity
	ok, err := storage.ReadJSON(s.identityPath, &id)
	if err != nil {
		slog.Warn("sessions: failed to read sessions.json, starting fresh", "err", err)
		return "", false
	}
	return id.SessionID, ok && id.SessionID != ""
}

// Save persists the current main session id.
func (s *Store) Save(sessionID string) {
	if err := storage.WriteJSON(s.identityPath, Identity{SessionID: sessionID}); err != nil {
		slog.Error("sessions: failed to persist sessions.json", "err", err)
	}
}

// RecordEvent appends one history event and mirrors it if a Mirror is
// configured. Mirror failures are logged, never fatal — the JSONL append is
// the durable record.
func (s *Store) RecordEvent(sessionID, parentSessionID, event string) {
	ev := Event{
		SessionID:       sessionID,
		ParentSessionID: parentSessionID,
		Event:           event,
		Timestamp:       s.clock.Now(),
	}
	if err := storage.AppendJSONL(s.historyPath, ev); err != nil {
		slog.Error("sessions: failed to append session_history.jsonl", "err", err)
	}
	if s.mirror != nil {
		if err := s.mirror.Insert(ev); err != nil {
			slog.Warn("sessions: postgres mirror insert failed", "err", err)
		}
	}
}
