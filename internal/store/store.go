// Package store defines the persistence gateway consumed by the call
// core. Recording is best effort: the in-memory structures remain the
// source of truth for live routing, so gateway failures are logged by
// the caller and never abort the operation that triggered them.
package store

import (
	"context"
	"time"

	"github.com/meetcall/meetcall/internal/domain"
)

type Gateway interface {
	// TouchDevice upserts the device record and refreshes last-seen.
	TouchDevice(ctx context.Context, id domain.ClientID, userAgent, ip string) error
	// MarkDeviceOffline backdates last-seen so the device drops out of
	// the activity window.
	MarkDeviceOffline(ctx context.Context, id domain.ClientID) error
	// ActiveDevices lists devices seen within the trailing window,
	// most recent first.
	ActiveDevices(ctx context.Context, window time.Duration) ([]domain.Device, error)

	RecordQueueJoin(ctx context.Context, id domain.ClientID) error
	RecordQueueLeave(ctx context.Context, id domain.ClientID) error
	RecordCallStart(ctx context.Context, callID domain.CallID, a, b domain.ClientID) error
	RecordCallEnd(ctx context.Context, callID domain.CallID) error

	Close() error
}
