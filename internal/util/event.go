package util

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
)

// PublishEvent encodes data as JSON and publishes it to subject. A ctx deadline bounds the ack wait.
func PublishEvent(ctx context.Context, js nats.JetStreamContext, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	opts := make([]nats.PubOpt, 0, 1)
	if _, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Context(ctx))
	}

	_, err = js.Publish(subject, payload, opts...)
	return err
}
