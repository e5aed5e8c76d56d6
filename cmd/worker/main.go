package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/presence-hub/internal/chat"
	"github.com/suPer8Hu/presence-hub/internal/config"
	"github.com/suPer8Hu/presence-hub/internal/db"
	"github.com/suPer8Hu/presence-hub/internal/logging"
	"github.com/suPer8Hu/presence-hub/internal/notify"
	"github.com/suPer8Hu/presence-hub/internal/store/rabbitmq"
)

const (
	maxAttempts = 5
	retryDelay  = 5 * time.Second
)

// retrier republishes a delivery on the retry queue. Workers share the channel.
type retrier struct {
	mu    sync.Mutex
	ch    *amqp.Channel
	queue string
}

func (r *retrier) retry(ctx context.Context, d amqp.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ch.PublishWithContext(ctx, "", rabbitmq.RetryQueue(r.queue), false, false, rabbitmq.RetryPublishing(d, retryDelay))
}

func fatal(log *slog.Logger, msg string, args ...any) {
	log.Error(msg, args...)
	os.Exit(1)
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logging.New(cfg.LogLevel, cfg.LogFormat).With("component", "notice-worker")
	slog.SetDefault(log)

	if cfg.RabbitURL == "" {
		fatal(log, "RABBIT_URL is required")
	}

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		fatal(log, "db connect", "err", err)
	}
	if err := chat.AutoMigrate(gdb); err != nil {
		fatal(log, "automigrate", "err", err)
	}

	// The worker only resolves notices, it never publishes.
	svc := notify.NewService(chat.NewRepo(gdb), nil, nil, log)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		fatal(log, "rabbit dial", "err", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		fatal(log, "rabbit channel", "err", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		fatal(log, "queue declare", "err", err)
	}

	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		fatal(log, "qos", "err", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		fatal(log, "consume", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)
	rt := &retrier{ch: ch, queue: cfg.RabbitQueue}

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With("worker", workerID)
			for d := range jobs {
				handleDelivery(ctx, wlog, svc, rt, d)
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Error("delivery channel closed")
				close(jobs)
				wg.Wait()
				os.Exit(1)
			}
			jobs <- d
		}
	}
}

// handleDelivery acks resolved notices. Storage errors are retried through the retry queue up to
// maxAttempts, everything else is dead-lettered.
func handleDelivery(ctx context.Context, log *slog.Logger, svc *notify.Service, rt *retrier, d amqp.Delivery) {
	m, err := rabbitmq.DecodeNotice(d.Body)
	if err != nil || m.NoticeID == "" {
		log.Warn("bad message", "err", err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	status, err := svc.Process(ctx, m.NoticeID)
	cost := time.Since(start)
	if err != nil {
		attempt := rabbitmq.Attempt(d)
		log.Error("notice failed", "notice_id", m.NoticeID, "status", status, "attempt", attempt, "cost", cost, "err", err)
		// an unresolved notice is still queued and can be processed again
		if status == "" && attempt < maxAttempts {
			rerr := rt.retry(ctx, d)
			if rerr == nil {
				_ = d.Ack(false)
				return
			}
			log.Error("retry publish failed", "notice_id", m.NoticeID, "err", rerr)
		}
		_ = d.Nack(false, false)
		return
	}

	if cost > 500*time.Millisecond {
		log.Warn("notice_timing", "notice_id", m.NoticeID, "status", status, "cost", cost)
	} else {
		log.Debug("notice resolved", "notice_id", m.NoticeID, "status", status, "cost", cost)
	}
	if err := d.Ack(false); err != nil {
		log.Error("ack failed", "notice_id", m.NoticeID, "err", err)
	}
}
