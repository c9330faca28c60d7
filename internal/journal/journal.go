// Package journal keeps an append-only SQLite log of released change sets.
// It is an audit trail of what each edit batch or propagation pass did, not
// a way to persist documents.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/agentic-research/stencil/internal/changes"
	_ "modernc.org/sqlite"
)

// Event kinds stored in the events table.
const (
	EventCreate       = "create"
	EventDelete       = "delete"
	EventValue        = "value"
	EventLinkAdded    = "link_added"
	EventLinkRemoved  = "link_removed"
	EventLinkValidity = "link_validity"
	EventDiagnostic   = "diagnostic"
)

// Pass summarizes one appended change set.
type Pass struct {
	ID     int64
	Label  string
	At     time.Time
	Events int
}

type Event struct {
	Kind   string
	Node   string
	Detail string
}

type Journal struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens the journal at path. ":memory:" works for tests.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS passes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		label TEXT NOT NULL,
		at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS events (
		pass_id INTEGER NOT NULL REFERENCES passes(id),
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		node TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (pass_id, seq)
	) WITHOUT ROWID;
	CREATE INDEX IF NOT EXISTS idx_events_node ON events(node);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// flatten lists the recorder's content in a stable order.
func flatten(rec *changes.Recorder) []Event {
	var out []Event
	for _, id := range rec.Created() {
		out = append(out, Event{EventCreate, id, ""})
	}
	for _, id := range rec.Deleted() {
		out = append(out, Event{EventDelete, id, ""})
	}
	for _, h := range rec.ChangedValues() {
		out = append(out, Event{EventValue, h.Node, h.Path.String()})
	}
	for _, d := range rec.AddedLinks() {
		out = append(out, Event{EventLinkAdded, d.End.Node, d.String()})
	}
	for _, d := range rec.RemovedLinks() {
		out = append(out, Event{EventLinkRemoved, d.End.Node, d.String()})
	}
	for _, d := range rec.ValidityChangedLinks() {
		out = append(out, Event{EventLinkValidity, d.End.Node, d.String()})
	}
	for _, id := range rec.ErrorNodes() {
		out = append(out, Event{EventDiagnostic, id, ""})
	}
	return out
}

// Append stores one change set under label and returns the new pass ID.
// Empty change sets are skipped and return 0.
func (j *Journal) Append(ctx context.Context, label string, rec *changes.Recorder) (int64, error) {
	if rec.Empty() {
		return 0, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `INSERT INTO passes (label, at) VALUES (?, ?)`, label, time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("insert pass: %w", err)
	}
	passID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (pass_id, seq, kind, node, detail) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()
	for i, ev := range flatten(rec) {
		if _, err := stmt.ExecContext(ctx, passID, i, ev.Kind, ev.Node, ev.Detail); err != nil {
			return 0, fmt.Errorf("insert event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return passID, nil
}

// List returns every pass, oldest first.
func (j *Journal) List(ctx context.Context) ([]Pass, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT p.id, p.label, p.at, COUNT(e.seq)
		FROM passes p LEFT JOIN events e ON e.pass_id = p.id
		GROUP BY p.id ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Pass
	for rows.Next() {
		var p Pass
		var at int64
		if err := rows.Scan(&p.ID, &p.Label, &at, &p.Events); err != nil {
			return nil, err
		}
		p.At = time.Unix(0, at)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Events returns the events of one pass in recording order.
func (j *Journal) Events(ctx context.Context, passID int64) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT kind, node, detail FROM events WHERE pass_id = ? ORDER BY seq`, passID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Kind, &e.Node, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// History returns the events that touched node across all passes.
func (j *Journal) History(ctx context.Context, node string) ([]Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT kind, node, detail FROM events WHERE node = ? ORDER BY pass_id, seq`, node)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Kind, &e.Node, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
