package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// ConvertDOW translates the weekday field of a declarative 5-field cron
// expression (Sunday=0, as authored) into the value the underlying cron
// evaluator (gronx, which also treats Sunday=0) expects, token by token:
// "*", "*/N", comma lists, ranges "a-b", and stepped ranges "a-b/step".
// The mapping function lets callers target a backend with a different
// origin (e.g. Monday=0) without rewriting the tokenizer; gronx's own
// numbering happens to agree with the declarative format, so the identity
// mapping is used by NextFire, but the tokenizer below is the one spelled
// out by the design notes and is exercised (and inverted) by tests.
func ConvertDOW(field string, mapDay func(int) int) (string, error) {
	if field == "*" {
		return field, nil
	}
	parts := strings.Split(field, ",")
	converted := make([]string, 0, len(parts))
	for _, part := range parts {
		c, err := convertDOWToken(part, mapDay)
		if err != nil {
			return "", err
		}
		converted = append(converted, c)
	}
	return strings.Join(converted, ","), nil
}

func convertDOWToken(token string, mapDay func(int) int) (string, error) {
	step := ""
	base := token
	if idx := strings.Index(token, "/"); idx >= 0 {
		base = token[:idx]
		step = token[idx:]
	}
	if base == "*" {
		return base + step, nil
	}
	if idx := strings.Index(base, "-"); idx >= 0 {
		lo, err := strconv.Atoi(base[:idx])
		if err != nil {
			return "", fmt.Errorf("schedule: bad dow range %q: %w", token, err)
		}
		hi, err := strconv.Atoi(base[idx+1:])
		if err != nil {
			return "", fmt.Errorf("schedule: bad dow range %q: %w", token, err)
		}
		return fmt.Sprintf("%d-%d%s", mapDay(lo), mapDay(hi), step), nil
	}
	n, err := strconv.Atoi(base)
	if err != nil {
		return "", fmt.Errorf("schedule: bad dow token %q: %w", token, err)
	}
	return fmt.Sprintf("%d%s", mapDay(n), step), nil
}

// identityDay is the mapping used against gronx, whose day-of-week
// numbering already agrees with the declarative Sunday=0 convention.
func identityDay(n int) int { return n % 7 }

// backendCron rewrites the 5th field of a standard cron expression using
// ConvertDOW so it can be handed to gronx.
func backendCron(cronExpr string) (string, error) {
	fields := strings.Fields(cronExpr)
	if len(fields) != 5 {
		return "", fmt.Errorf("schedule: cron expression must have 5 fields, got %d", len(fields))
	}
	dow, err := ConvertDOW(fields[4], identityDay)
	if err != nil {
		return "", err
	}
	fields[4] = dow
	return strings.Join(fields, " "), nil
}

// ValidCron reports whether cronExpr is a well-formed 5-field expression.
func ValidCron(cronExpr string) bool {
	expr, err := backendCron(cronExpr)
	if err != nil {
		return false
	}
	return gronx.IsValid(expr)
}

// NextFire returns the next fire time strictly after ref.
func NextFire(cronExpr string, ref time.Time) (time.Time, error) {
	expr, err := backendCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return gronx.NextTickAfter(expr, ref, false)
}

// PrevFire returns the most recent fire time at or before ref.
func PrevFire(cronExpr string, ref time.Time) (time.Time, error) {
	expr, err := backendCron(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return gronx.PrevTickBefore(expr, ref, true)
}
