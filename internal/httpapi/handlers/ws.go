package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/presence-hub/internal/auth"
	"github.com/suPer8Hu/presence-hub/internal/common"
	"github.com/suPer8Hu/presence-hub/internal/httpapi/middleware"
	"github.com/suPer8Hu/presence-hub/internal/realtime"
	"github.com/suPer8Hu/presence-hub/internal/ws"
)

const disconnectTimeout = 5 * time.Second

// ConnectedFrame is the first frame of every connection, sent once connect handling is done.
type ConnectedFrame struct {
	Type string        `json:"type"`
	Data ConnectedData `json:"data"`
}

type ConnectedData struct {
	SessionID string `json:"session_id"`
	UserID    uint64 `json:"user_id"`
}

// ServeWS authenticates, upgrades and then runs the connection until it closes.
func (h *Handler) ServeWS(c *gin.Context) {
	// browsers cannot set headers on a WebSocket handshake, so the query param comes first
	token := c.Query("token")
	if token == "" {
		token = middleware.BearerToken(c)
	}
	if token == "" {
		common.Fail(c, http.StatusUnauthorized, 40100, "missing token")
		return
	}
	uid, err := auth.ParseJWT(token, h.Cfg.JWTSecret)
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, 40101, "invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response
		h.Log.Debug("websocket upgrade failed", "user_id", uid, "err", err)
		return
	}
	h.conns.Add(1)
	defer h.conns.Done()

	sess := realtime.Session{
		ID:          common.NewSessionID(),
		UserID:      uid,
		ConnectedAt: time.Now().UTC(),
	}
	client := ws.NewClient(h.Hub, conn, sess)
	h.Hub.Register(client)
	go client.WritePump()

	ctx := context.WithoutCancel(c.Request.Context())
	defer func() {
		dctx, cancel := context.WithTimeout(ctx, disconnectTimeout)
		defer cancel()
		h.Dispatcher.Disconnect(dctx, sess)
		h.Hub.Unregister(client)
	}()

	if err := h.Dispatcher.Connect(ctx, sess); err != nil {
		h.Log.Warn("connect rejected", "user_id", uid, "err", err)
		return
	}
	client.SendJSON(ConnectedFrame{Type: "connected", Data: ConnectedData{SessionID: sess.ID, UserID: uid}})

	client.ReadPump(ctx, h.Dispatcher)
}
