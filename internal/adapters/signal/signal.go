// Package signal carries the WebSocket controllers: the video-call
// signaling endpoint and the live-users presence endpoint.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/meetcall/meetcall/internal/app"
	"github.com/meetcall/meetcall/internal/config"
	"github.com/meetcall/meetcall/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn adapts one gorilla connection to core.SignalConnection. Sends
// are queued on a bounded channel; a full channel drops the frame rather
// than blocking the caller.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{conn: ws, send: make(chan core.Frame, 32)}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// CallWSController serves the /ws/video-call endpoint.
type CallWSController struct {
	Orch       *app.Orchestrator
	Limiter    *JoinRateLimiter
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewCallWSController(cfg *config.Config, orch *app.Orchestrator) *CallWSController {
	return &CallWSController{
		Orch:       orch,
		Limiter:    NewJoinRateLimiter(defaultJoinLimit, defaultJoinInterval),
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	}
}

// HandleCall upgrades the request and starts the connection's pumps. The
// parent ctx is the server's, not the request's: the request context dies
// when the handler returns, the hijacked socket lives on.
func (ctl *CallWSController) HandleCall(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}
	log.Info().Str("module", "signal").Str("remote", c.ClientIP()).Msg("new call WS connection")

	conn := newWSConn(ws)
	sess := core.NewClientSession(conn)
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sess, conn, c.Request.UserAgent(), c.ClientIP())
}
