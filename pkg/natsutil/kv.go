package natsutil

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// OpenKV returns the JetStream key-value bucket, creating it if needed.
func OpenKV(ctx context.Context, nc *nats.Conn, bucket string) (jetstream.KeyValue, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("natsutil: jetstream: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "vinwizard search history",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("natsutil: open kv %s: %w", bucket, err)
	}
	return kv, nil
}
