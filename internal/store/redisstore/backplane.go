package redisstore

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Ping checks connectivity with a short timeout.
func Ping(ctx context.Context, rdb *redis.Client) error {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rdb.Ping(cctx).Err()
}

// Backplane publishes room broadcasts on "<prefix><room>" channels and pattern-subscribes to
// all of them, so every instance sees every room event.
type Backplane struct {
	rdb    *redis.Client
	prefix string
	log    *slog.Logger
}

func NewBackplane(rdb *redis.Client, prefix string, logger *slog.Logger) *Backplane {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backplane{rdb: rdb, prefix: prefix, log: logger}
}

func (b *Backplane) Publish(ctx context.Context, room string, payload []byte) error {
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return b.rdb.Publish(cctx, b.prefix+room, payload).Err()
}

// Subscribe waits for the subscription to be confirmed, then delivers in the background until
// ctx is done.
func (b *Backplane) Subscribe(ctx context.Context, handler func(room string, payload []byte)) error {
	ps := b.rdb.PSubscribe(ctx, b.prefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return err
	}

	ch := ps.Channel()
	go func() {
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					b.log.Warn("backplane subscription closed")
					return
				}
				room := strings.TrimPrefix(m.Channel, b.prefix)
				handler(room, []byte(m.Payload))
			}
		}
	}()
	b.log.Info("backplane subscribed", "pattern", b.prefix+"*")
	return nil
}
