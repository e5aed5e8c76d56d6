package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/presence-hub/internal/common"
	"github.com/suPer8Hu/presence-hub/internal/httpapi/handlers"
	"github.com/suPer8Hu/presence-hub/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler, log *slog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())

	r.GET("/ping", h.Ping)

	// auth
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	// realtime (token in query or Authorization header)
	r.GET("/ws", h.ServeWS)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(h.Cfg.JWTSecret))
	authGroup.GET("/me", h.Me)
	authGroup.GET("/presence", h.GetPresence)
	return r
}
