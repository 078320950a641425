package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTouchDeviceWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.TouchDevice(ctx, "dev-1", "agent", "10.0.0.1"); err != nil {
		t.Fatal(err)
	}
	devices, err := s.ActiveDevices(ctx, 30*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 || devices[0].ID != "dev-1" {
		t.Fatalf("expected dev-1 active, got %v", devices)
	}
	if devices[0].UserAgent != "agent" || devices[0].IPAddress != "10.0.0.1" {
		t.Fatalf("device metadata lost: %+v", devices[0])
	}

	if err := s.MarkDeviceOffline(ctx, "dev-1"); err != nil {
		t.Fatal(err)
	}
	devices, err = s.ActiveDevices(ctx, 30*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 0 {
		t.Fatalf("offline device still in window: %v", devices)
	}
}

func TestTouchDeviceUpsertKeepsCreatedAt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.TouchDevice(ctx, "dev-1", "agent", ""); err != nil {
		t.Fatal(err)
	}
	var created time.Time
	if err := s.db.QueryRowContext(ctx, `SELECT created_at FROM devices WHERE id = ?`, "dev-1").Scan(&created); err != nil {
		t.Fatal(err)
	}

	if err := s.TouchDevice(ctx, "dev-1", "", ""); err != nil {
		t.Fatal(err)
	}
	var createdAfter time.Time
	var agent string
	if err := s.db.QueryRowContext(ctx, `SELECT created_at, user_agent FROM devices WHERE id = ?`, "dev-1").Scan(&createdAfter, &agent); err != nil {
		t.Fatal(err)
	}
	if !createdAfter.Equal(created) {
		t.Fatal("upsert rewrote created_at")
	}
	if agent != "agent" {
		t.Fatalf("empty touch erased user agent, got %q", agent)
	}
}

func TestTouchDeviceTruncatesUserAgent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	if err := s.TouchDevice(ctx, "dev-1", string(long), ""); err != nil {
		t.Fatal(err)
	}
	devices, err := s.ActiveDevices(ctx, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(devices[0].UserAgent) != maxUserAgentLen {
		t.Fatalf("user agent length %d, want %d", len(devices[0].UserAgent), maxUserAgentLen)
	}
}

func TestQueueEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordQueueJoin(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordQueueLeave(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	var joins, leaves int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM queue_events WHERE client_id = ? AND event = 'join'`, "c1").Scan(&joins); err != nil {
		t.Fatal(err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM queue_events WHERE client_id = ? AND event = 'leave'`, "c1").Scan(&leaves); err != nil {
		t.Fatal(err)
	}
	if joins != 1 || leaves != 1 {
		t.Fatalf("expected one join and one leave, got %d/%d", joins, leaves)
	}
}

func TestCallLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.RecordCallStart(ctx, "call-1", "a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordCallEnd(ctx, "call-1"); err != nil {
		t.Fatal(err)
	}

	var endedAt time.Time
	if err := s.db.QueryRowContext(ctx, `SELECT ended_at FROM calls WHERE id = ?`, "call-1").Scan(&endedAt); err != nil {
		t.Fatal(err)
	}

	// A second end (lost race) must not move the timestamp.
	time.Sleep(5 * time.Millisecond)
	if err := s.RecordCallEnd(ctx, "call-1"); err != nil {
		t.Fatal(err)
	}
	var endedAgain time.Time
	if err := s.db.QueryRowContext(ctx, `SELECT ended_at FROM calls WHERE id = ?`, "call-1").Scan(&endedAgain); err != nil {
		t.Fatal(err)
	}
	if !endedAgain.Equal(endedAt) {
		t.Fatal("duplicate call end rewrote ended_at")
	}
}
