package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/meetcall/meetcall/internal/config"
	"github.com/meetcall/meetcall/internal/core"
	"github.com/meetcall/meetcall/internal/domain"
	"github.com/meetcall/meetcall/internal/store"
)

// LiveUsersController serves the /ws/live-users endpoint: a simple
// publish-subscribe fan-out of the active-user count. It shares the
// connection plumbing with the call controller but none of the pairing
// logic.
type LiveUsersController struct {
	Presence  *core.PresenceRegistry
	Store     store.Gateway
	Window    time.Duration
	ReadLimit int64
}

func NewLiveUsersController(cfg *config.Config, presence *core.PresenceRegistry, gw store.Gateway) *LiveUsersController {
	return &LiveUsersController{
		Presence:  presence,
		Store:     gw,
		Window:    cfg.PresenceWindow,
		ReadLimit: cfg.ReadLimit,
	}
}

type activeUsersMsg struct {
	Type      string              `json:"type"`
	Count     int                 `json:"count"`
	Users     []core.PresenceInfo `json:"users"`
	Timestamp time.Time           `json:"timestamp"`
}

type userCountUpdateMsg struct {
	Type        string `json:"type"`
	ActiveUsers struct {
		Count int                 `json:"count"`
		Users []core.PresenceInfo `json:"users"`
	} `json:"active_users"`
	Timestamp time.Time `json:"timestamp"`
}

func (ctl *LiveUsersController) HandleLiveUsers(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "presence").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := newWSConn(ws)
	subKey := uuid.NewString()
	ctl.Presence.Subscribe(subKey, conn)
	log.Info().Str("module", "presence").Str("sub", subKey).Msg("live-users subscriber joined")

	// Current count goes out immediately on connect.
	ctl.sendSnapshot(conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writeLoop(ctx, conn)
	go ctl.readLoop(ctx, cancel, conn, subKey, c.Request.UserAgent(), c.ClientIP())
}

func (ctl *LiveUsersController) writeLoop(ctx context.Context, c *wsConn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func (ctl *LiveUsersController) readLoop(ctx context.Context, cancel context.CancelFunc, c *wsConn, subKey, userAgent, ip string) {
	var deviceID domain.ClientID

	defer func() {
		ctl.Presence.Unsubscribe(subKey)
		if deviceID != "" {
			ctl.Presence.MarkInactive(deviceID)
			if err := ctl.Store.MarkDeviceOffline(ctx, deviceID); err != nil {
				log.Warn().Err(err).Str("module", "presence").Msg("mark device offline failed")
			}
		}
		cancel()
		c.Close()
		log.Info().Str("module", "presence").Str("sub", subKey).Msg("live-users subscriber left")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			deviceID = ctl.handleMessage(ctx, c, data, deviceID, userAgent, ip)
		}
	}
}

func (ctl *LiveUsersController) handleMessage(ctx context.Context, c *wsConn, data []byte, deviceID domain.ClientID, userAgent, ip string) domain.ClientID {
	var env struct {
		Type       string `json:"type"`
		DeviceUUID string `json:"device_uuid"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		ctl.sendJSON(c, struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}{"error", "Invalid JSON"})
		return deviceID
	}

	switch env.Type {
	case "user_online":
		if env.DeviceUUID == "" {
			return deviceID
		}
		deviceID = domain.ClientID(env.DeviceUUID)
		ctl.touch(ctx, deviceID, userAgent, ip)
		ctl.broadcastUpdate()
	case "ping":
		if deviceID != "" {
			ctl.touch(ctx, deviceID, userAgent, ip)
		}
		ctl.sendJSON(c, struct {
			Type      string    `json:"type"`
			Timestamp time.Time `json:"timestamp"`
		}{"pong", time.Now()})
	default:
		log.Warn().Str("module", "presence").Str("type", env.Type).Msg("unknown live-users message")
	}
	return deviceID
}

func (ctl *LiveUsersController) touch(ctx context.Context, id domain.ClientID, userAgent, ip string) {
	ctl.Presence.MarkActive(id)
	if err := ctl.Store.TouchDevice(ctx, id, userAgent, ip); err != nil {
		log.Warn().Err(err).Str("module", "presence").Msg("touch device failed")
	}
}

func (ctl *LiveUsersController) sendSnapshot(c *wsConn) {
	users := ctl.Presence.ActiveSnapshot(ctl.Window)
	ctl.sendJSON(c, activeUsersMsg{
		Type:      "active_users",
		Count:     len(users),
		Users:     users,
		Timestamp: time.Now(),
	})
}

func (ctl *LiveUsersController) broadcastUpdate() {
	users := ctl.Presence.ActiveSnapshot(ctl.Window)
	msg := userCountUpdateMsg{Type: "user_count_update", Timestamp: time.Now()}
	msg.ActiveUsers.Count = len(users)
	msg.ActiveUsers.Users = users

	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "presence").Msg("marshal user_count_update")
		return
	}
	ctl.Presence.Broadcast(b)
}

func (ctl *LiveUsersController) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "presence").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
