package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meetcall/meetcall/internal/adapters/signal"
	"github.com/meetcall/meetcall/internal/app"
	"github.com/meetcall/meetcall/internal/config"
	"github.com/meetcall/meetcall/internal/store"
)

// ClientTokenMiddleware tags each browser with a stable cookie so device
// records can be correlated across visits.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator, gw store.Gateway) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(ClientTokenMiddleware())

	callCtl := signal.NewCallWSController(cfg, orch)
	liveCtl := signal.NewLiveUsersController(cfg, orch.Presence, gw)

	r.GET("/ws/video-call", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("video-call endpoint hit")
		callCtl.HandleCall(ctx, c)
	})
	r.GET("/ws/live-users", func(c *gin.Context) {
		liveCtl.HandleLiveUsers(ctx, c)
	})

	api := r.Group("/api")

	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "MeetCall API is running",
		})
	})

	api.GET("/webrtc-config", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ice_servers": cfg.WebRTCICEServers()})
	})

	api.GET("/live-users", func(c *gin.Context) {
		devices, err := gw.ActiveDevices(c.Request.Context(), cfg.PresenceWindow)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get live users"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"count":     len(devices),
			"users":     devices,
			"timestamp": time.Now(),
		})
	})

	return r
}
