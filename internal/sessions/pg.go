package sessions

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// PGMirror mirrors session_history.jsonl rows into Postgres (SPEC_FULL
// §3.7): additive, never authoritative — the JSONL file remains the source
// of truth for read_all/crash recovery either way. Grounded on the
// teacher's own `database/sql` + `jackc/pgx/v5/stdlib` pairing
// (internal/store/pg + cmd/migrate.go use the stdlib driver rather than
// pgx's native pool interface, and this module follows the same choice so
// `goclaw-sched migrate` can run the identical golang-migrate/v4 workflow).
type PGMirror struct {
	db *sql.DB
}

// NewPGMirror opens dsn and verifies connectivity. The caller is expected to
// have already run `goclaw-sched migrate up` against the same database.
func NewPGMirror(dsn string) (*PGMirror, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessions: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessions: ping postgres: %w", err)
	}
	return &PGMirror{db: db}, nil
}

func (m *PGMirror) Close() error { return m.db.Close() }

// Insert implements Mirror.
func (m *PGMirror) Insert(ev Event) error {
	_, err := m.db.Exec(
		`INSERT INTO session_history (session_id, parent_session_id, event, occurred_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4)`,
		ev.SessionID, ev.ParentSessionID, ev.Event, ev.Timestamp,
	)
	return err
}
