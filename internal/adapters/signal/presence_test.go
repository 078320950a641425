package signal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/meetcall/meetcall/internal/core"
)

func newLiveUsersTestController() *LiveUsersController {
	return &LiveUsersController{
		Presence: core.NewPresenceRegistry(),
		Store:    nopGateway{},
		Window:   30 * time.Second,
	}
}

func recvFrame(t *testing.T, c *wsConn) map[string]any {
	t.Helper()
	select {
	case data := <-c.send:
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("bad frame %q: %v", data, err)
		}
		return m
	default:
		t.Fatal("no frame queued")
		return nil
	}
}

func TestUserOnlineBroadcastsCount(t *testing.T) {
	ctl := newLiveUsersTestController()
	watcher := newWSConn(nil)
	ctl.Presence.Subscribe("watcher", watcher)

	reporter := newWSConn(nil)
	ctl.handleMessage(context.Background(), reporter, []byte(`{"type":"user_online","device_uuid":"dev-1"}`), "", "agent", "10.0.0.1")

	m := recvFrame(t, watcher)
	if m["type"] != "user_count_update" {
		t.Fatalf("expected user_count_update, got %v", m)
	}
	active := m["active_users"].(map[string]any)
	if active["count"] != float64(1) {
		t.Fatalf("expected count 1, got %v", active["count"])
	}
}

func TestUserOnlineWithoutDeviceIgnored(t *testing.T) {
	ctl := newLiveUsersTestController()
	watcher := newWSConn(nil)
	ctl.Presence.Subscribe("watcher", watcher)

	reporter := newWSConn(nil)
	id := ctl.handleMessage(context.Background(), reporter, []byte(`{"type":"user_online"}`), "", "", "")
	if id != "" {
		t.Fatalf("device bound without uuid: %q", id)
	}
	select {
	case data := <-watcher.send:
		t.Fatalf("unexpected broadcast %s", data)
	default:
	}
}

func TestPresencePingRefreshesActivity(t *testing.T) {
	ctl := newLiveUsersTestController()
	c := newWSConn(nil)

	id := ctl.handleMessage(context.Background(), c, []byte(`{"type":"user_online","device_uuid":"dev-1"}`), "", "", "")
	if id != "dev-1" {
		t.Fatalf("device not bound, got %q", id)
	}

	ctl.handleMessage(context.Background(), c, []byte(`{"type":"ping"}`), id, "", "")
	m := recvFrame(t, c)
	if m["type"] != "pong" {
		t.Fatalf("expected pong, got %v", m)
	}
	if ctl.Presence.CountActive(ctl.Window) != 1 {
		t.Fatal("ping must keep the device active")
	}
}

func TestPresenceInvalidJSON(t *testing.T) {
	ctl := newLiveUsersTestController()
	c := newWSConn(nil)

	ctl.handleMessage(context.Background(), c, []byte(`nope`), "", "", "")
	m := recvFrame(t, c)
	if m["type"] != "error" || m["message"] != "Invalid JSON" {
		t.Fatalf("expected Invalid JSON error, got %v", m)
	}
}

func TestSnapshotOnSubscribe(t *testing.T) {
	ctl := newLiveUsersTestController()
	ctl.Presence.MarkActive("dev-1")

	c := newWSConn(nil)
	ctl.sendSnapshot(c)
	m := recvFrame(t, c)
	if m["type"] != "active_users" || m["count"] != float64(1) {
		t.Fatalf("expected snapshot with one active user, got %v", m)
	}
}
