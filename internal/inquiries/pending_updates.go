package inquiries

import (
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/goclaw-sched/internal/clock"
	"github.com/nextlevelbuilder/goclaw-sched/internal/storage"
)

// Update is one message a fork reported back to the main session.
type Update struct {
	Timestamp time.Time `json:"ts"`
	Message   string    `json:"message"`
}

// PendingUpdates is the ordered fork→main bridge queue.
type PendingUpdates struct {
	path  string
	clock clock.Clock
}

func NewPendingUpdates(stateDir string, c clock.Clock) *PendingUpdates {
	return &PendingUpdates{path: filepath.Join(stateDir, "pending_updates.json"), clock: c}
}

func (p *PendingUpdates) load() ([]Update, error) {
	var list []Update
	_, err := storage.ReadJSON(p.path, &list)
	return list, err
}

func (p *PendingUpdates) save(list []Update) error {
	if list == nil {
		list = []Update{}
	}
	return storage.WriteJSON(p.path, list)
}

// Append adds a message to the end of the queue.
func (p *PendingUpdates) Append(message string) error {
	list, err := p.load()
	if err != nil {
		return err
	}
	list = append(list, Update{Timestamp: p.clock.Now(), Message: message})
	return p.save(list)
}

// Peek returns the queue contents without clearing it.
func (p *PendingUpdates) Peek() ([]Update, error) {
	return p.load()
}

// Clear empties the queue without returning its contents.
func (p *PendingUpdates) Clear() error {
	return p.save(nil)
}

// PopAll returns and clears the queue contents, in insertion order.
func (p *PendingUpdates) PopAll() ([]Update, error) {
	list, err := p.load()
	if err != nil {
		return nil, err
	}
	if err := p.save(nil); err != nil {
		return nil, err
	}
	return list, nil
}
