// Package statuslog persists STATUS reports received from the controller in
// SQLite, grouped into sessions.
package statuslog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"qcwcore/protocol"
)

//go:embed schema.sql
var schemaSQL string

// Store is a status log database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open status log: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect status log: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		schemaSQL,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("status log schema: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Session groups the reports of one connection.
type Session struct {
	ID        string
	StartedAt time.Time
	Device    string
	TimerFreq uint32
}

// Record is one stored report.
type Record struct {
	Seq        int64
	ReceivedAt time.Time
	protocol.Status
}

// NewSession starts a session with a fresh time-ordered ID.
func (s *Store) NewSession(ctx context.Context, device string, timerFreq uint32) (Session, error) {
	sess := Session{
		ID:        uuid.Must(uuid.NewV7()).String(),
		StartedAt: time.Now(),
		Device:    device,
		TimerFreq: timerFreq,
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, started_at, device, timer_freq) VALUES (?, ?, ?, ?)",
		sess.ID, sess.StartedAt.UnixNano(), sess.Device, sess.TimerFreq)
	if err != nil {
		return Session{}, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// Append stores one report.
func (s *Store) Append(ctx context.Context, session string, at time.Time, st protocol.Status) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO statuses
		 (session_id, received_at, flags, period, phase_error, peak, protocol_errors, latch_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session, at.UnixNano(), st.Flags, st.Period, st.PhaseError, st.Peak, st.ProtocolErrors, st.LatchCount)
	if err != nil {
		return fmt.Errorf("insert status: %w", err)
	}
	return nil
}

// Sessions lists sessions, newest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, started_at, device, timer_freq FROM sessions ORDER BY started_at DESC, id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var started int64
		if err := rows.Scan(&sess.ID, &started, &sess.Device, &sess.TimerFreq); err != nil {
			return nil, err
		}
		sess.StartedAt = time.Unix(0, started)
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Records returns the reports of a session in arrival order.
func (s *Store) Records(ctx context.Context, session string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, received_at, flags, period, phase_error, peak, protocol_errors, latch_count
		 FROM statuses WHERE session_id = ? ORDER BY seq`, session)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var at int64
		if err := rows.Scan(&r.Seq, &at, &r.Flags, &r.Period, &r.PhaseError, &r.Peak,
			&r.ProtocolErrors, &r.LatchCount); err != nil {
			return nil, err
		}
		r.ReceivedAt = time.Unix(0, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Trips returns the reports of a session where the latch count increased.
func (s *Store) Trips(ctx context.Context, session string) ([]Record, error) {
	records, err := s.Records(ctx, session)
	if err != nil {
		return nil, err
	}
	var trips []Record
	var last uint32
	for _, r := range records {
		if r.LatchCount > last {
			trips = append(trips, r)
		}
		last = r.LatchCount
	}
	return trips, nil
}
