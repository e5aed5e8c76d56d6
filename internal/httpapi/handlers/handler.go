package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/suPer8Hu/presence-hub/internal/chat"
	"github.com/suPer8Hu/presence-hub/internal/common"
	"github.com/suPer8Hu/presence-hub/internal/config"
	"github.com/suPer8Hu/presence-hub/internal/httpapi/middleware"
	"github.com/suPer8Hu/presence-hub/internal/realtime"
	"github.com/suPer8Hu/presence-hub/internal/ws"
)

type Handler struct {
	Cfg        config.Config
	Repo       *chat.Repo
	Hub        *ws.Hub
	Dispatcher *realtime.Dispatcher
	Log        *slog.Logger

	upgrader websocket.Upgrader
	conns    sync.WaitGroup // live ServeWS calls
}

func NewHandler(cfg config.Config, repo *chat.Repo, hub *ws.Hub, d *realtime.Dispatcher, log *slog.Logger) *Handler {
	h := &Handler{Cfg: cfg, Repo: repo, Hub: hub, Dispatcher: d, Log: log}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg),
	}
	return h
}

// originChecker returns nil (gorilla's same-origin check) unless origins are configured.
func originChecker(cfg config.Config) func(r *http.Request) bool {
	if cfg.WSInsecureSkipVerify {
		return func(*http.Request) bool { return true }
	}
	if len(cfg.WSAllowedOrigins) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(cfg.WSAllowedOrigins))
	for _, o := range cfg.WSAllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.ToLower(origin)]
		return ok
	}
}

// WaitConnections blocks until every websocket handler has run its disconnect cleanup, or ctx is
// done. Call it after the hub closed the connections.
func (h *Handler) WaitConnections(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{
		"pong":         true,
		"connections":  h.Hub.ClientCount(),
		"online_users": h.Dispatcher.Presence().OnlineCount(),
		"typing":       h.Dispatcher.ActiveTyping(),
	})
}
