package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goclaw-sched/internal/storage"
)

const timeLayout = time.RFC3339

func policyToHeader(p Policy) []storage.HeaderField {
	var h []storage.HeaderField
	if p.Background {
		h = append(h, storage.HeaderField{Key: "background", Value: "true"})
	}
	if p.SkipIfBusy {
		h = append(h, storage.HeaderField{Key: "skip_if_busy", Value: "true"})
	}
	if p.Model != "" {
		h = append(h, storage.HeaderField{Key: "model", Value: p.Model})
	}
	if p.Isolated {
		h = append(h, storage.HeaderField{Key: "isolated", Value: "true"})
	}
	if p.Thinking {
		h = append(h, storage.HeaderField{Key: "thinking", Value: "true"})
	}
	if p.UpdateMainSession != "" && p.UpdateMainSession != DefaultUpdateMainSession {
		h = append(h, storage.HeaderField{Key: "update_main_session", Value: string(p.UpdateMainSession)})
	}
	if !p.AllowPing {
		h = append(h, storage.HeaderField{Key: "allow_ping", Value: "false"})
	}
	if len(p.AllowedTools) > 0 {
		h = append(h, storage.HeaderField{Key: "allowed_tools", List: p.AllowedTools})
	}
	if len(p.BlockedTools) > 0 {
		h = append(h, storage.HeaderField{Key: "blocked_tools", List: p.BlockedTools})
	}
	return h
}

func policyFromRecord(rec storage.Record) Policy {
	p := defaultPolicy()
	if v, ok := rec.Get("background"); ok {
		p.Background = v == "true"
	}
	if v, ok := rec.Get("skip_if_busy"); ok {
		p.SkipIfBusy = v == "true"
	}
	if v, ok := rec.Get("model"); ok {
		p.Model = v
	}
	if v, ok := rec.Get("isolated"); ok {
		p.Isolated = v == "true"
	}
	if v, ok := rec.Get("thinking"); ok {
		p.Thinking = v == "true"
	}
	if v, ok := rec.Get("update_main_session"); ok {
		p.UpdateMainSession = UpdateMainSession(v)
	}
	if v, ok := rec.Get("allow_ping"); ok {
		p.AllowPing = v != "false"
	}
	if v, ok := rec.GetList("allowed_tools"); ok {
		p.AllowedTools = v
	}
	if v, ok := rec.GetList("blocked_tools"); ok {
		p.BlockedTools = v
	}
	return p
}

// ToRecord serializes a Routine into a storage.Record, omitting default fields.
func (r Routine) ToRecord() storage.Record {
	h := []storage.HeaderField{{Key: "cron", Value: r.Cron}}
	if r.Description != "" {
		h = append(h, storage.HeaderField{Key: "description", Value: r.Description})
	}
	h = append(h, policyToHeader(r.Policy)...)
	return storage.Record{ID: r.ID, Header: h, Body: r.Message}
}

// RoutineFromRecord parses a storage.Record back into a Routine.
func RoutineFromRecord(rec storage.Record) (Routine, error) {
	cron, ok := rec.Get("cron")
	if !ok {
		return Routine{}, fmt.Errorf("schedule: routine %s missing cron", rec.ID)
	}
	desc, _ := rec.Get("description")
	return Routine{
		ID:          rec.ID,
		Cron:        cron,
		Description: desc,
		Message:     rec.Body,
		Policy:      policyFromRecord(rec),
	}, nil
}

// ToRecord serializes a Reminder into a storage.Record.
func (r Reminder) ToRecord() storage.Record {
	h := []storage.HeaderField{{Key: "run_at", Value: r.RunAt.UTC().Format(timeLayout)}}
	if r.Description != "" {
		h = append(h, storage.HeaderField{Key: "description", Value: r.Description})
	}
	if r.ChainDepth != 0 {
		h = append(h, storage.HeaderField{Key: "chain_depth", Value: strconv.Itoa(r.ChainDepth)})
	}
	if r.MaxChain != 0 {
		h = append(h, storage.HeaderField{Key: "max_chain", Value: strconv.Itoa(r.MaxChain)})
	}
	if r.ChainParent != "" {
		h = append(h, storage.HeaderField{Key: "chain_parent", Value: r.ChainParent})
	}
	h = append(h, policyToHeader(r.Policy)...)
	return storage.Record{ID: r.ID, Header: h, Body: r.Message}
}

// ReminderFromRecord parses a storage.Record back into a Reminder.
func ReminderFromRecord(rec storage.Record) (Reminder, error) {
	runAtStr, ok := rec.Get("run_at")
	if !ok {
		return Reminder{}, fmt.Errorf("schedule: reminder %s missing run_at", rec.ID)
	}
	runAt, err := time.Parse(timeLayout, runAtStr)
	if err != nil {
		return Reminder{}, fmt.Errorf("schedule: reminder %s bad run_at: %w", rec.ID, err)
	}
	desc, _ := rec.Get("description")
	depth := 0
	if v, ok := rec.Get("chain_depth"); ok {
		depth, _ = strconv.Atoi(v)
	}
	maxChain := 0
	if v, ok := rec.Get("max_chain"); ok {
		maxChain, _ = strconv.Atoi(v)
	}
	parent, _ := rec.Get("chain_parent")
	rem := Reminder{
		ID:          rec.ID,
		RunAt:       runAt,
		Description: desc,
		ChainDepth:  depth,
		MaxChain:    maxChain,
		ChainParent: parent,
		Message:     rec.Body,
		Policy:      policyFromRecord(rec),
	}
	return rem, nil
}

// Webhook is a file-backed HTTP trigger spec (SPEC_FULL §3.6).
type Webhook struct {
	ID      string
	Message string // template with {name} placeholders
	Fields  []WebhookField
	Policy  Policy
}

// WebhookField describes one accepted JSON field.
type WebhookField struct {
	Name      string
	Type      string // "string", "number", "boolean"
	Required  bool
	Enum      []string
	MaxLength int // strings only; 0 means "use default (500)"
}

func (w Webhook) ToRecord() storage.Record {
	h := []storage.HeaderField{}
	var fieldLines []string
	for _, f := range w.Fields {
		line := f.Name + ":" + f.Type
		if f.Required {
			line += ":required"
		}
		if len(f.Enum) > 0 {
			line += ":enum=" + strings.Join(f.Enum, "|")
		}
		if f.MaxLength > 0 {
			line += fmt.Sprintf(":maxlen=%d", f.MaxLength)
		}
		fieldLines = append(fieldLines, line)
	}
	if len(fieldLines) > 0 {
		h = append(h, storage.HeaderField{Key: "fields", List: fieldLines})
	}
	h = append(h, policyToHeader(w.Policy)...)
	return storage.Record{ID: w.ID, Header: h, Body: w.Message}
}

func WebhookFromRecord(rec storage.Record) (Webhook, error) {
	w := Webhook{ID: rec.ID, Message: rec.Body, Policy: policyFromRecord(rec)}
	lines, _ := rec.GetList("fields")
	for _, line := range lines {
		parts := strings.Split(line, ":")
		if len(parts) < 2 {
			continue
		}
		f := WebhookField{Name: parts[0], Type: parts[1]}
		for _, p := range parts[2:] {
			switch {
			case p == "required":
				f.Required = true
			case strings.HasPrefix(p, "enum="):
				f.Enum = strings.Split(strings.TrimPrefix(p, "enum="), "|")
			case strings.HasPrefix(p, "maxlen="):
				n, _ := strconv.Atoi(strings.TrimPrefix(p, "maxlen="))
				f.MaxLength = n
			}
		}
		w.Fields = append(w.Fields, f)
	}
	return w, nil
}
