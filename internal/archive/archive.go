// Package archive keeps saved dialogue snapshots in a local SQLite database.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/roundtable/internal/dialogue"
	"github.com/mark3labs/roundtable/internal/logger"
	"github.com/rs/xid"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ErrNotFound is returned when no saved session has the requested id.
var ErrNotFound = errors.New("archive: session not found")

// Entry summarizes one saved snapshot.
type Entry struct {
	ID         string         `json:"id"`
	Session    string         `json:"session"`
	Topic      string         `json:"topic"`
	Mode       dialogue.Mode  `json:"mode"`
	State      dialogue.State `json:"state"`
	Rounds     int            `json:"rounds"`
	Messages   int            `json:"messages"`
	HasOutcome bool           `json:"has_outcome"`
	Tally      dialogue.Tally `json:"tally"`
	SavedAt    time.Time      `json:"saved_at"`
}

// Archive is a SQLite-backed collection of saved snapshots.
type Archive struct {
	db  *sql.DB
	log *logger.Named
}

// Open opens (creating if needed) the archive database at path.
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("archive: create data dir: %w", err)
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("archive: pragma %q: %w", p, err)
		}
	}

	a := &Archive{db: db, log: logger.For("archive")}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive: migration: %w", err)
	}
	return a, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS saved_sessions (
			id          TEXT PRIMARY KEY,
			session     TEXT NOT NULL,
			topic       TEXT NOT NULL,
			mode        TEXT NOT NULL,
			state       TEXT NOT NULL,
			rounds      INTEGER NOT NULL,
			messages    INTEGER NOT NULL,
			has_outcome INTEGER NOT NULL DEFAULT 0,
			tally       TEXT NOT NULL,
			snapshot    TEXT NOT NULL,
			saved_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_saved_sessions_session ON saved_sessions(session);
		CREATE INDEX IF NOT EXISTS idx_saved_sessions_saved_at ON saved_sessions(saved_at);
	`
	_, err := a.db.Exec(schema)
	return err
}

// Save stores snap and returns its entry. In-progress placeholders are not saved.
func (a *Archive) Save(ctx context.Context, snap dialogue.Snapshot) (Entry, error) {
	msgs := make([]dialogue.Message, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		if m.Kind != dialogue.KindPlaceholder {
			msgs = append(msgs, m)
		}
	}
	snap.Messages = msgs
	snap.Tally = dialogue.CountStances(msgs)

	body, err := json.Marshal(snap)
	if err != nil {
		return Entry{}, fmt.Errorf("archive: marshal snapshot: %w", err)
	}
	tally, err := json.Marshal(snap.Tally)
	if err != nil {
		return Entry{}, fmt.Errorf("archive: marshal tally: %w", err)
	}

	e := Entry{
		ID:         xid.New().String(),
		Session:    snap.Session,
		Topic:      snap.Topic,
		Mode:       snap.Mode,
		State:      snap.State,
		Rounds:     snap.Round,
		Messages:   len(msgs),
		HasOutcome: snap.Outcome != nil,
		Tally:      snap.Tally,
		SavedAt:    time.Now().UTC().Truncate(time.Second),
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO saved_sessions (id, session, topic, mode, state, rounds, messages, has_outcome, tally, snapshot, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Session, e.Topic, string(e.Mode), string(e.State), e.Rounds, e.Messages,
		boolToInt(e.HasOutcome), string(tally), string(body), e.SavedAt.Format(time.RFC3339),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("archive: insert: %w", err)
	}

	a.log.Info("saved session %s as %s (%d messages)", e.Session, e.ID, e.Messages)
	return e, nil
}

// List returns saved entries, newest first. A limit of 0 returns everything.
func (a *Archive) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, session, topic, mode, state, rounds, messages, has_outcome, tally, saved_at
		FROM saved_sessions ORDER BY saved_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the entry and full snapshot saved under id.
func (a *Archive) Get(ctx context.Context, id string) (Entry, dialogue.Snapshot, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, session, topic, mode, state, rounds, messages, has_outcome, tally, saved_at, snapshot
		FROM saved_sessions WHERE id = ?`, id)

	var (
		e            Entry
		mode, state  string
		hasOutcome   int
		tally, saved string
		body         string
	)
	err := row.Scan(&e.ID, &e.Session, &e.Topic, &mode, &state, &e.Rounds, &e.Messages, &hasOutcome, &tally, &saved, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, dialogue.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, dialogue.Snapshot{}, fmt.Errorf("archive: get %s: %w", id, err)
	}
	if err := fillEntry(&e, mode, state, hasOutcome, tally, saved); err != nil {
		return Entry{}, dialogue.Snapshot{}, err
	}

	var snap dialogue.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return Entry{}, dialogue.Snapshot{}, fmt.Errorf("archive: decode snapshot %s: %w", id, err)
	}
	return e, snap, nil
}

// Delete removes a saved entry.
func (a *Archive) Delete(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM saved_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("archive: delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e            Entry
		mode, state  string
		hasOutcome   int
		tally, saved string
	)
	if err := rows.Scan(&e.ID, &e.Session, &e.Topic, &mode, &state, &e.Rounds, &e.Messages, &hasOutcome, &tally, &saved); err != nil {
		return Entry{}, fmt.Errorf("archive: scan: %w", err)
	}
	if err := fillEntry(&e, mode, state, hasOutcome, tally, saved); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func fillEntry(e *Entry, mode, state string, hasOutcome int, tally, saved string) error {
	e.Mode = dialogue.Mode(mode)
	e.State = dialogue.State(state)
	e.HasOutcome = hasOutcome != 0
	if err := json.Unmarshal([]byte(tally), &e.Tally); err != nil {
		return fmt.Errorf("archive: decode tally for %s: %w", e.ID, err)
	}
	t, err := time.Parse(time.RFC3339, saved)
	if err != nil {
		return fmt.Errorf("archive: parse saved_at for %s: %w", e.ID, err)
	}
	e.SavedAt = t
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
