package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Duet/internal/app/orch"
	"github.com/dkeye/Duet/internal/core"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type StartRequest struct {
	Mode string `json:"mode"`
}

type InviteRequest struct {
	UserID string `json:"userId"`
}

type BackgroundRequest struct {
	Backgrounded *bool `json:"backgrounded"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handlers maps the control API onto the session.
type Handlers struct {
	Orch *orch.Orchestrator
}

func accepted(c *gin.Context) {
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// command wraps a no-argument session command.
func (h *Handlers) command(fn func(orch.Controller)) gin.HandlerFunc {
	return func(c *gin.Context) {
		fn(h.Orch.Session)
		accepted(c)
	}
}

func (h *Handlers) start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid mode"})
		return
	}
	mode, ok := domain.ParseMode(req.Mode)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be random or direct"})
		return
	}
	h.Orch.Session.Start(mode)
	accepted(c)
}

func (h *Handlers) invite(c *gin.Context) {
	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid userId"})
		return
	}
	h.Orch.Session.Invite(domain.UserID(req.UserID))
	accepted(c)
}

func (h *Handlers) accept(c *gin.Context) {
	h.Orch.Session.AcceptIncoming(domain.CallID(c.Param("id")))
	accepted(c)
}

func (h *Handlers) decline(c *gin.Context) {
	h.Orch.Session.DeclineIncoming(domain.CallID(c.Param("id")))
	accepted(c)
}

func (h *Handlers) background(c *gin.Context) {
	var req BackgroundRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Backgrounded == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid backgrounded"})
		return
	}
	h.Orch.Session.SetBackgrounded(*req.Backgrounded)
	accepted(c)
}

func (h *Handlers) state(c *gin.Context) {
	c.JSON(http.StatusOK, orch.NewStateDTO(h.Orch.Session.Snapshot()))
}

// events upgrades to a websocket that streams session events to one viewer.
func (h *Handlers) events(ctx context.Context) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind := core.ViewerKind(c.DefaultQuery("kind", string(core.ViewerMain)))
		if kind != core.ViewerMain && kind != core.ViewerPiP {
			c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be main or pip"})
			return
		}
		token := c.GetString("client_token")

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("upgrade failed")
			return
		}

		conn := newViewerConn(ws)
		viewer := core.NewViewerSession(core.ViewerID(token+":"+string(kind)), kind, conn)
		vctx, cancel := context.WithCancel(ctx)
		h.Orch.Attach(viewer, cancel)
		log.Info().Str("module", "adapters.http").Str("viewer", string(viewer.ID())).Msg("viewer attached")

		go conn.writeLoop(vctx)
		conn.readLoop()

		cancel()
		h.Orch.Detach(viewer)
		log.Info().Str("module", "adapters.http").Str("viewer", string(viewer.ID())).Msg("viewer detached")
	}
}
