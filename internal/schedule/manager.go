package schedule

import (
	"fmt"
	"path/filepath"

	"github.com/nextlevelbuilder/goclaw-sched/internal/storage"
)

// Manager is the thin CRUD layer over the three entry stores, mirroring the
// original program's reminders.py/routines.py wrappers around storage.py.
type Manager struct {
	routines *storage.Store
	reminders *storage.Store
	webhooks *storage.Store
}

func NewManager(stateDir string, gitCommit bool) (*Manager, error) {
	r, err := storage.NewStore(filepath.Join(stateDir, "routines"), gitCommit)
	if err != nil {
		return nil, err
	}
	m, err := storage.NewStore(filepath.Join(stateDir, "reminders"), gitCommit)
	if err != nil {
		return nil, err
	}
	w, err := storage.NewStore(filepath.Join(stateDir, "webhooks"), gitCommit)
	if err != nil {
		return nil, err
	}
	return &Manager{routines: r, reminders: m, webhooks: w}, nil
}

func (m *Manager) ListRoutines() ([]Routine, error) {
	recs, err := m.routines.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]Routine, 0, len(recs))
	for _, rec := range recs {
		r, err := RoutineFromRecord(rec)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Manager) ListReminders() ([]Reminder, error) {
	recs, err := m.reminders.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]Reminder, 0, len(recs))
	for _, rec := range recs {
		r, err := ReminderFromRecord(rec)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *Manager) ListWebhooks() ([]Webhook, error) {
	recs, err := m.webhooks.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]Webhook, 0, len(recs))
	for _, rec := range recs {
		w, err := WebhookFromRecord(rec)
		if err != nil {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func (m *Manager) AddRoutine(r Routine) error {
	if err := r.Policy.Validate(); err != nil {
		return err
	}
	if !ValidCron(r.Cron) {
		return fmt.Errorf("schedule: invalid cron expression %q", r.Cron)
	}
	return m.routines.Write(r.ToRecord(), r.Message)
}

func (m *Manager) AddReminder(r Reminder) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return m.reminders.Write(r.ToRecord(), r.Message)
}

func (m *Manager) AddWebhook(w Webhook) error {
	if err := w.Policy.Validate(); err != nil {
		return err
	}
	return m.webhooks.Write(w.ToRecord(), w.ID)
}

func (m *Manager) CancelRoutine(id string) error  { return m.routines.Remove(id) }
func (m *Manager) CancelReminder(id string) error { return m.reminders.Remove(id) }
func (m *Manager) RemoveWebhook(id string) error  { return m.webhooks.Remove(id) }

// Dirs returns the routines/reminders/webhooks directories, for callers
// (the scheduler's fsnotify watcher) that need to watch them directly.
func (m *Manager) Dirs() []string {
	return []string{m.routines.Dir(), m.reminders.Dir(), m.webhooks.Dir()}
}

func (m *Manager) GetWebhook(id string) (Webhook, bool, error) {
	ws, err := m.ListWebhooks()
	if err != nil {
		return Webhook{}, false, err
	}
	for _, w := range ws {
		if w.ID == id {
			return w, true, nil
		}
	}
	return Webhook{}, false, nil
}
