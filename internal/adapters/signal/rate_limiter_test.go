package signal

import (
	"context"
	"testing"
	"time"

	"github.com/meetcall/meetcall/internal/domain"
)

// nopGateway satisfies store.Gateway for dispatch tests.
type nopGateway struct{}

func (nopGateway) TouchDevice(context.Context, domain.ClientID, string, string) error { return nil }
func (nopGateway) MarkDeviceOffline(context.Context, domain.ClientID) error           { return nil }
func (nopGateway) ActiveDevices(context.Context, time.Duration) ([]domain.Device, error) {
	return nil, nil
}
func (nopGateway) RecordQueueJoin(context.Context, domain.ClientID) error  { return nil }
func (nopGateway) RecordQueueLeave(context.Context, domain.ClientID) error { return nil }
func (nopGateway) RecordCallStart(context.Context, domain.CallID, domain.ClientID, domain.ClientID) error {
	return nil
}
func (nopGateway) RecordCallEnd(context.Context, domain.CallID) error { return nil }
func (nopGateway) Close() error                                       { return nil }

func TestJoinRateLimiter(t *testing.T) {
	rl := NewJoinRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !rl.Allow("a") {
			t.Fatalf("attempt %d should pass", i+1)
		}
	}
	if rl.Allow("a") {
		t.Fatal("fourth attempt within the window should be blocked")
	}
	if !rl.Allow("b") {
		t.Fatal("limits are per client")
	}

	rl.Forget("a")
	if !rl.Allow("a") {
		t.Fatal("forgotten client starts fresh")
	}
}

func TestJoinRateLimiterWindowExpiry(t *testing.T) {
	rl := NewJoinRateLimiter(1, 10*time.Millisecond)
	if !rl.Allow("a") {
		t.Fatal("first attempt should pass")
	}
	if rl.Allow("a") {
		t.Fatal("second attempt inside window should be blocked")
	}
	time.Sleep(15 * time.Millisecond)
	if !rl.Allow("a") {
		t.Fatal("attempt after window expiry should pass")
	}
}
