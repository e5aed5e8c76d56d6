package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/suPer8Hu/presence-hub/internal/chat"
	"github.com/suPer8Hu/presence-hub/internal/config"
	"github.com/suPer8Hu/presence-hub/internal/db"
	"github.com/suPer8Hu/presence-hub/internal/httpapi"
	"github.com/suPer8Hu/presence-hub/internal/httpapi/handlers"
	"github.com/suPer8Hu/presence-hub/internal/logging"
	"github.com/suPer8Hu/presence-hub/internal/notify"
	"github.com/suPer8Hu/presence-hub/internal/presence"
	"github.com/suPer8Hu/presence-hub/internal/realtime"
	"github.com/suPer8Hu/presence-hub/internal/store/rabbitmq"
	"github.com/suPer8Hu/presence-hub/internal/store/redisstore"
	"github.com/suPer8Hu/presence-hub/internal/typing"
	"github.com/suPer8Hu/presence-hub/internal/ws"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)
	gin.SetMode(cfg.GinMode)

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Error("db connect", "driver", cfg.DBDriver, "err", err)
		os.Exit(1)
	}
	if err := chat.AutoMigrate(gdb); err != nil {
		log.Error("automigrate", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := chat.NewRepo(gdb)
	hub := ws.NewHub(log)

	if cfg.RedisAddr != "" {
		rdb := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()
		if err := redisstore.Ping(ctx, rdb); err != nil {
			log.Error("redis ping", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}
		if err := hub.UseBackplane(ctx, redisstore.NewBackplane(rdb, cfg.RedisChannelPrefix, log)); err != nil {
			log.Error("redis subscribe", "err", err)
			os.Exit(1)
		}
		log.Info("redis backplane enabled", "addr", cfg.RedisAddr, "prefix", cfg.RedisChannelPrefix)
	}

	opts := realtime.Options{
		RecentConversations: cfg.RecentConversations,
		Logger:              log,
	}
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Error("rabbit publisher", "err", err)
			os.Exit(1)
		}
		defer pub.Close()
		opts.Notifier = notify.NewService(repo, pub, nil, log)
		log.Info("offline notices enabled", "queue", cfg.RabbitQueue)
	}

	tracker := typing.NewTracker()
	d := realtime.NewDispatcher(chat.NewService(repo), hub, hub, presence.NewRegistry(), tracker, opts)

	reaper := realtime.NewReaper(tracker, hub, cfg.TypingSweepInterval, cfg.TypingTimeout, log)
	reaper.Start(ctx)

	h := handlers.NewHandler(cfg, repo, hub, d, log)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server started", "addr", cfg.HTTPAddr, "db", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	hub.CloseAll()
	// let every connection write its offline transition before the process exits
	if err := h.WaitConnections(shutdownCtx); err != nil {
		log.Warn("websocket drain", "err", err)
	}
	reaper.Stop()
}
