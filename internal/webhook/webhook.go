// Package webhook implements the authenticated HTTP ingress described in
// spec §4.K/§6.3: bearer-authenticated JSON POST against a file-backed
// webhook spec, field validation, best-effort prompt-injection screening,
// and dispatch into the scheduler's background-fork lane.
package webhook

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/nextlevelbuilder/goclaw-sched/internal/schedule"
	"github.com/nextlevelbuilder/goclaw-sched/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const (
	maxFields           = 20
	defaultMaxLength    = 500
)

// Screener flags free-text field values as possible prompt-injection
// attempts. A screener that panics or errors is treated as "not flagged" —
// the spec mandates failing open for availability.
type Screener func(fieldValue string) (redacted string, flagged bool)

// Dispatcher enqueues the assembled prompt for background-fork execution.
// The handler writes its 202 response first and then calls the dispatcher
// on a goroutine of its own, so the response never waits for the run.
type Dispatcher func(webhookID, prompt string, policy schedule.Policy)

// Handler serves POST /hook/<id>.
type Handler struct {
	secret     string
	manager    *schedule.Manager
	dispatch   Dispatcher
	screen     Screener
	limiter    *rate.Limiter
}

func NewHandler(secret string, manager *schedule.Manager, dispatch Dispatcher, screen Screener) *Handler {
	if screen == nil {
		screen = DefaultScreener
	}
	return &Handler{
		secret:   secret,
		manager:  manager,
		dispatch: dispatch,
		screen:   screen,
		limiter:  rate.NewLimiter(rate.Limit(5), 10), // 5 req/s, burst 10, per-process
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, span := telemetry.StartSpan(r.Context(), "webhook.deliver")
	defer span.End()

	deliveryID := uuid.NewString()
	span.SetAttributes(attribute.String("webhook.delivery_id", deliveryID))
	w.Header().Set("X-Delivery-Id", deliveryID)

	if !h.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate limited")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/hook/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "unknown webhook")
		return
	}
	span.SetAttributes(attribute.String("webhook.id", id))

	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) || !constantTimeEqual(strings.TrimPrefix(auth, prefix), h.secret) {
		writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
		return
	}

	spec, ok, err := h.manager.GetWebhook(id)
	if err != nil || !ok {
		writeError(w, http.StatusNotFound, "unknown webhook")
		return
	}

	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(payload) > maxFields {
		writeError(w, http.StatusBadRequest, "too many fields")
		return
	}

	values, verr := validate(spec, payload)
	if verr != "" {
		writeError(w, http.StatusBadRequest, verr)
		return
	}

	prompt := assemblePrompt(spec, values, h.screen)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(`{"status":"accepted"}`))

	go h.dispatch(spec.ID, prompt, spec.Policy)
}

func validate(spec schedule.Webhook, payload map[string]any) (map[string]string, string) {
	fieldByName := map[string]schedule.WebhookField{}
	for _, f := range spec.Fields {
		fieldByName[f.Name] = f
	}

	for name := range payload {
		if _, ok := fieldByName[name]; !ok {
			return nil, fmt.Sprintf("unexpected field %q", name)
		}
	}

	out := map[string]string{}
	for _, f := range spec.Fields {
		raw, present := payload[f.Name]
		if !present {
			if f.Required {
				return nil, fmt.Sprintf("missing required field %q", f.Name)
			}
			continue
		}
		str, verr := coerce(f, raw)
		if verr != "" {
			return nil, verr
		}
		out[f.Name] = str
	}
	return out, ""
}

func coerce(f schedule.WebhookField, raw any) (string, string) {
	maxLen := f.MaxLength
	if maxLen <= 0 {
		maxLen = defaultMaxLength
	}
	switch f.Type {
	case "string", "":
		s, ok := raw.(string)
		if !ok {
			return "", fmt.Sprintf("field %q must be a string", f.Name)
		}
		if len(s) > maxLen {
			return "", fmt.Sprintf("field %q exceeds max length %d", f.Name, maxLen)
		}
		if len(f.Enum) > 0 && !contains(f.Enum, s) {
			return "", fmt.Sprintf("field %q must be one of %v", f.Name, f.Enum)
		}
		return s, ""
	case "number":
		switch v := raw.(type) {
		case float64:
			return strconv.FormatFloat(v, 'g', -1, 64), ""
		default:
			return "", fmt.Sprintf("field %q must be a number", f.Name)
		}
	case "boolean":
		v, ok := raw.(bool)
		if !ok {
			return "", fmt.Sprintf("field %q must be a boolean", f.Name)
		}
		return strconv.FormatBool(v), ""
	default:
		return "", fmt.Sprintf("field %q has unsupported type %q", f.Name, f.Type)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func assemblePrompt(spec schedule.Webhook, values map[string]string, screen Screener) string {
	screened := make(map[string]string, len(values))
	for name, v := range values {
		redacted, flagged := safeScreen(screen, v)
		if flagged {
			v = redacted
		}
		screened[name] = v
	}

	var b strings.Builder
	b.WriteString("WEBHOOK DATA (untrusted):\n")
	for name, v := range screened {
		fmt.Fprintf(&b, "- %s: %s\n", name, v)
	}
	b.WriteString("\nTASK:\n")
	b.WriteString(interpolate(spec.Message, screened))
	return b.String()
}

// safeScreen calls screen, converting a panic or not-flagged error result
// into "not flagged" per the fail-open requirement.
func safeScreen(screen Screener, value string) (redacted string, flagged bool) {
	defer func() {
		if recover() != nil {
			redacted, flagged = value, false
		}
	}()
	return screen(value)
}

func interpolate(template string, values map[string]string) string {
	out := template
	for name, v := range values {
		out = strings.ReplaceAll(out, "{"+name+"}", v)
	}
	return out
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := json.Marshal(map[string]string{"error": msg})
	w.Write(data)
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// still run the comparison to avoid a length-based timing oracle
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
