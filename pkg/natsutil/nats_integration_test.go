//go:build integration

package natsutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func connectNATS(t *testing.T) *nats.Conn {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("nats connect: %v", err)
	}
	t.Cleanup(func() { nc.Close() })
	return nc
}

func TestNATS_PubSub(t *testing.T) {
	nc := connectNATS(t)

	ch := make(chan testMsg, 1)
	sub, err := Subscribe(nc, "integ.vinwizard", func(ctx context.Context, m testMsg) { ch <- m })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	if err := Publish(context.Background(), nc, "integ.vinwizard", testMsg{Name: "hello"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-ch:
		if got.Name != "hello" {
			t.Fatalf("expected hello, got %q", got.Name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestNATS_KV(t *testing.T) {
	nc := connectNATS(t)
	ctx := context.Background()

	kv, err := OpenKV(ctx, nc, "vinwizard_integ")
	if err != nil {
		t.Fatalf("OpenKV: %v", err)
	}
	if _, err := kv.Put(ctx, "searchHistory", []byte(`[]`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	e, err := kv.Get(ctx, "searchHistory")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(e.Value()) != "[]" {
		t.Fatalf("unexpected value %q", e.Value())
	}
}
