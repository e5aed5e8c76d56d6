package redisstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestBackplane_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	rdb := NewClient(addr, os.Getenv("REDIS_PASSWORD"), 0)
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := Ping(ctx, rdb); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}

	prefix := fmt.Sprintf("presence-hub-test-%d:", time.Now().UnixNano())
	bp := NewBackplane(rdb, prefix, nil)

	type got struct {
		room    string
		payload string
	}
	recv := make(chan got, 1)
	if err := bp.Subscribe(ctx, func(room string, payload []byte) {
		recv <- got{room, string(payload)}
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bp.Publish(ctx, "user_7", []byte(`{"type":"x"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case g := <-recv:
		if g.room != "user_7" || g.payload != `{"type":"x"}` {
			t.Fatalf("unexpected delivery: %+v", g)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for backplane delivery")
	}
}
