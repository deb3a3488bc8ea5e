package http

import (
	"context"

	"github.com/dkeye/Duet/internal/app/orch"
	"github.com/dkeye/Duet/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const tokenKey = "client_token"

// ClientTokenMiddleware gives every browser a stable viewer token kept in
// the signed session cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(tokenKey).(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set(tokenKey, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(tokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("DuetSessions", store))
	r.Use(ClientTokenMiddleware())

	h := &Handlers{Orch: o}
	api := r.Group("/api")

	api.POST("/start", h.start)
	api.POST("/stop", h.command(orch.Controller.Stop))
	api.POST("/next", h.command(orch.Controller.Next))
	api.POST("/end", h.command(orch.Controller.End))
	api.POST("/abort", h.command(orch.Controller.Abort))
	api.POST("/invite", h.invite)
	api.POST("/invite/cancel", h.command(orch.Controller.CancelInvite))
	api.POST("/incoming/:id/accept", h.accept)
	api.POST("/incoming/:id/decline", h.decline)
	api.POST("/mic/toggle", h.command(orch.Controller.ToggleMic))
	api.POST("/cam/toggle", h.command(orch.Controller.ToggleCam))
	api.POST("/pip/enter", h.command(orch.Controller.EnterPiP))
	api.POST("/pip/exit", h.command(orch.Controller.ExitPiP))
	api.POST("/background", h.background)

	api.GET("/state", h.state)
	api.GET("/ws/events", h.events(ctx))

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
