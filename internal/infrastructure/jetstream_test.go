package infrastructure

import (
	"errors"
	"testing"

	"github.com/krobus00/sj-trading/internal/config"
	"github.com/nats-io/nats.go"
)

func TestNewJetstreamRequiresURL(t *testing.T) {
	_, _, err := NewJetstream(config.NatsJetstreamConfig{URL: "  "})
	if !errors.Is(err, ErrNatsURLRequired) {
		t.Fatalf("expected ErrNatsURLRequired, got %v", err)
	}
}

func TestNatsOptionsApplyDefaults(t *testing.T) {
	opts := nats.GetDefaultOptions()
	for _, opt := range natsOptions(config.NatsJetstreamConfig{URL: "nats://127.0.0.1:4222"}) {
		if err := opt(&opts); err != nil {
			t.Fatalf("apply option: %v", err)
		}
	}

	if opts.Name != config.ServiceName {
		t.Fatalf("unexpected client name %q", opts.Name)
	}
	if opts.MaxReconnect != defaultNatsMaxRetries {
		t.Fatalf("expected %d reconnects, got %d", defaultNatsMaxRetries, opts.MaxReconnect)
	}
	if !opts.RetryOnFailedConnect {
		t.Fatal("expected retry on failed connect")
	}
	if opts.CustomReconnectDelayCB == nil {
		t.Fatal("expected custom reconnect delay")
	}
	if d := opts.CustomReconnectDelayCB(20); d > natsBackoffDefaults.MaxJitter {
		t.Fatalf("reconnect delay %s above cap", d)
	}
}
