// Package inquiries implements the short-lived id→prompt table backing
// clickable buttons that must survive a process restart, and the
// fork→main pending-updates bridge queue (spec §3.4/§4.C).
package inquiries

import (
	"crypto/rand"
	"encoding/hex"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/goclaw-sched/internal/clock"
	"github.com/nextlevelbuilder/goclaw-sched/internal/storage"
)

const ttl = 7 * 24 * time.Hour

// Entry is one registered inquiry.
type Entry struct {
	Prompt    string    `json:"prompt"`
	Timestamp time.Time `json:"ts"`
}

// Store persists inquiries.json.
type Store struct {
	path  string
	clock clock.Clock
}

func NewStore(stateDir string, c clock.Clock) *Store {
	return &Store{path: filepath.Join(stateDir, "inquiries.json"), clock: c}
}

func (s *Store) load() (map[string]Entry, error) {
	m := map[string]Entry{}
	ok, err := storage.ReadJSON(s.path, &m)
	if err != nil {
		return nil, err
	}
	if !ok {
		return map[string]Entry{}, nil
	}
	cutoff := s.clock.Now().Add(-ttl)
	for id, e := range m {
		if e.Timestamp.Before(cutoff) {
			delete(m, id)
		}
	}
	return m, nil
}

func (s *Store) save(m map[string]Entry) error {
	return storage.WriteJSON(s.path, m)
}

func newID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Register stores prompt and returns its 8-character id.
func (s *Store) Register(prompt string) (string, error) {
	m, err := s.load()
	if err != nil {
		return "", err
	}
	id := newID()
	m[id] = Entry{Prompt: prompt, Timestamp: s.clock.Now()}
	if err := s.save(m); err != nil {
		return "", err
	}
	return id, nil
}

// Pop removes and returns the prompt for id, if present and not expired.
func (s *Store) Pop(id string) (string, bool, error) {
	m, err := s.load()
	if err != nil {
		return "", false, err
	}
	e, ok := m[id]
	if !ok {
		return "", false, nil
	}
	delete(m, id)
	if err := s.save(m); err != nil {
		return "", false, err
	}
	return e.Prompt, true, nil
}
