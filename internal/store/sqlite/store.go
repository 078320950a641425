// Package sqlite implements the persistence gateway backed by a SQLite
// database. It records devices, queue events, and call history.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/meetcall/meetcall/internal/domain"
)

// offlineBackdate matches the presence registry: a device marked offline
// is pushed out of the activity window rather than deleted.
const offlineBackdate = 60 * time.Second

const maxUserAgentLen = 100

// Store wraps a SQLite database connection for all gateway operations.
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path, runs migrations, and
// enables WAL mode for improved concurrent read performance.
func Open(path string) (*Store, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	// Append per-connection PRAGMAs to the DSN so every pooled connection gets them.
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=foreign_keys(1)&_pragma=synchronous(normal)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)

	// journal_mode and busy_timeout are database-wide; set them once here.
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite setup (%s): %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS devices (
	id TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL,
	last_seen DATETIME NOT NULL,
	user_agent TEXT NULL,
	ip_address TEXT NULL
);
CREATE TABLE IF NOT EXISTS queue_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_id TEXT NOT NULL,
	event TEXT NOT NULL,
	at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS calls (
	id TEXT PRIMARY KEY,
	client_a TEXT NOT NULL,
	client_b TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	ended_at DATETIME NULL
);
CREATE INDEX IF NOT EXISTS idx_devices_last_seen ON devices(last_seen DESC);
CREATE INDEX IF NOT EXISTS idx_queue_events_client ON queue_events(client_id, at);
CREATE INDEX IF NOT EXISTS idx_calls_started_at ON calls(started_at DESC);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// TouchDevice upserts the device record and refreshes last-seen.
func (s *Store) TouchDevice(ctx context.Context, id domain.ClientID, userAgent, ip string) error {
	if len(userAgent) > maxUserAgentLen {
		userAgent = userAgent[:maxUserAgentLen]
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO devices (id, created_at, last_seen, user_agent, ip_address)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	last_seen = excluded.last_seen,
	user_agent = COALESCE(excluded.user_agent, devices.user_agent),
	ip_address = COALESCE(excluded.ip_address, devices.ip_address)`,
		string(id), now, now, nullableString(userAgent), nullableString(ip))
	return err
}

// MarkDeviceOffline backdates last-seen past the activity window.
func (s *Store) MarkDeviceOffline(ctx context.Context, id domain.ClientID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE devices SET last_seen = ? WHERE id = ?`,
		time.Now().UTC().Add(-offlineBackdate), string(id))
	return err
}

// ActiveDevices lists devices seen within the trailing window, most
// recent first.
func (s *Store) ActiveDevices(ctx context.Context, window time.Duration) ([]domain.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, created_at, last_seen, user_agent, ip_address
FROM devices WHERE last_seen >= ? ORDER BY last_seen DESC`,
		time.Now().UTC().Add(-window))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Device
	for rows.Next() {
		var (
			d         domain.Device
			id        string
			userAgent sql.NullString
			ip        sql.NullString
		)
		if err := rows.Scan(&id, &d.CreatedAt, &d.LastSeen, &userAgent, &ip); err != nil {
			return nil, err
		}
		d.ID = domain.ClientID(id)
		d.UserAgent = userAgent.String
		d.IPAddress = ip.String
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) RecordQueueJoin(ctx context.Context, id domain.ClientID) error {
	return s.recordQueueEvent(ctx, id, "join")
}

func (s *Store) RecordQueueLeave(ctx context.Context, id domain.ClientID) error {
	return s.recordQueueEvent(ctx, id, "leave")
}

func (s *Store) recordQueueEvent(ctx context.Context, id domain.ClientID, event string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_events (client_id, event, at) VALUES (?, ?, ?)`,
		string(id), event, time.Now().UTC())
	return err
}

func (s *Store) RecordCallStart(ctx context.Context, callID domain.CallID, a, b domain.ClientID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO calls (id, client_a, client_b, started_at) VALUES (?, ?, ?, ?)`,
		string(callID), string(a), string(b), time.Now().UTC())
	return err
}

func (s *Store) RecordCallEnd(ctx context.Context, callID domain.CallID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE calls SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().UTC(), string(callID))
	return err
}

func nullableString(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func ensureParentDir(path string) error {
	path = strings.TrimSpace(path)
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
