package infrastructure

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/krobus00/sj-trading/internal/config"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

var ErrNatsURLRequired = errors.New("nats jetstream url is required")

const (
	defaultNatsMaxRetries      = 10
	defaultNatsConnectTimeout  = 5 * time.Second
	defaultNatsDrainTimeout    = 10 * time.Second
	defaultNatsPingInterval    = 30 * time.Second
	defaultNatsPingOutstanding = 3
	defaultJetStreamMaxWait    = 5 * time.Second
	defaultJetStreamMaxPending = 256
)

var natsBackoffDefaults = BackoffDefaults{
	Factor:    2.0,
	MinJitter: 100 * time.Millisecond,
	MaxJitter: 2 * time.Second,
}

// NewJetstream connects to NATS and opens a JetStream context for the event publisher.
func NewJetstream(cfg config.NatsJetstreamConfig) (*nats.Conn, nats.JetStreamContext, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, nil, ErrNatsURLRequired
	}

	nc, err := nats.Connect(cfg.URL, natsOptions(cfg)...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream(
		nats.PublishAsyncMaxPending(defaultJetStreamMaxPending),
		nats.MaxWait(defaultJetStreamMaxWait),
	)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}

	logrus.WithField("url", cfg.URL).Info("nats jetstream connection established")

	return nc, js, nil
}

func natsOptions(cfg config.NatsJetstreamConfig) []nats.Option {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultNatsMaxRetries
	}
	backoff := NewBackoffPolicy(cfg.ReconnectFactor, cfg.MinJitter, cfg.MaxJitter, natsBackoffDefaults)

	return []nats.Option{
		nats.Name(config.ServiceName),
		nats.Timeout(defaultNatsConnectTimeout),
		nats.DrainTimeout(defaultNatsDrainTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(maxRetries),
		nats.PingInterval(defaultNatsPingInterval),
		nats.MaxPingsOutstanding(defaultNatsPingOutstanding),
		nats.CustomReconnectDelay(backoff.Delay),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logrus.WithError(err).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logrus.Infof("nats reconnected: %s", conn.ConnectedUrl())
		}),
		nats.ClosedHandler(func(conn *nats.Conn) {
			logrus.Warnf("nats connection closed: %v", conn.LastError())
		}),
	}
}

// CloseJetstream drains pending publishes and waits for the connection to close.
func CloseJetstream(nc *nats.Conn) error {
	if nc == nil {
		return nil
	}

	if err := nc.Drain(); err != nil {
		nc.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}

	deadline := time.Now().Add(defaultNatsDrainTimeout)
	for !nc.IsClosed() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	nc.Close()

	return nil
}
