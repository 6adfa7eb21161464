package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/krobus00/sj-trading/internal/config"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/sirupsen/logrus"
)

var (
	ErrBrokerNotFound   = errors.New("broker not found")
	ErrNotLoggedIn      = errors.New("broker session is not logged in")
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderNotActive   = errors.New("order is not active")
	ErrInvalidOrder     = errors.New("invalid order")
	ErrCANotFound       = errors.New("ca certificate not found")
	ErrContractNotFound = errors.New("contract not found")
)

type Factory func(cfg config.BrokerConfig, simulation bool) (entity.Broker, error)

var (
	GlobalBrokerRegistry = make(map[entity.BrokerName]Factory)
)

func RegisterBroker(name entity.BrokerName, factory Factory) {
	GlobalBrokerRegistry[name] = factory
}

func init() {
	RegisterBroker(entity.BrokerGateway, func(cfg config.BrokerConfig, simulation bool) (entity.Broker, error) {
		return NewGatewayBroker(cfg, simulation)
	})
	RegisterBroker(entity.BrokerPaper, func(cfg config.BrokerConfig, simulation bool) (entity.Broker, error) {
		return NewPaperBroker(nil), nil
	})
}

func New(cfg config.BrokerConfig, simulation bool) (entity.Broker, error) {
	name := entity.BrokerName(strings.ToLower(strings.TrimSpace(cfg.Name)))
	if name == "" {
		name = entity.BrokerGateway
	}

	factory, ok := GlobalBrokerRegistry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBrokerNotFound, name)
	}

	return factory(cfg, simulation)
}

// Open validates the credentials for the trading mode, logs in and activates the CA outside simulation.
func Open(ctx context.Context, cfg *config.EnvConfig, simulation bool) (entity.Broker, error) {
	if err := cfg.Validate(simulation); err != nil {
		return nil, err
	}

	b, err := New(cfg.Broker, simulation)
	if err != nil {
		return nil, err
	}

	logger := logrus.WithFields(logrus.Fields{
		"broker": cfg.Broker.Name,
		"mode":   config.ModeLabel(simulation),
	})

	if err := b.Login(ctx); err != nil {
		return nil, fmt.Errorf("broker login: %w", err)
	}
	logger.Info("broker login succeeded")

	if !simulation {
		if err := b.ActivateCA(ctx, cfg.Broker.CACertPath, cfg.Broker.CAPassword); err != nil {
			_ = b.Logout(ctx)
			return nil, fmt.Errorf("activate ca: %w", err)
		}
		logger.Info("ca activated")
	}

	return b, nil
}
