package bootstrap

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/krobus00/sj-trading/internal/config"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/krobus00/sj-trading/internal/infrastructure"
	"github.com/krobus00/sj-trading/internal/metrics"
	"github.com/krobus00/sj-trading/internal/repository"
	"github.com/krobus00/sj-trading/internal/service/broker"
	"github.com/krobus00/sj-trading/internal/service/event"
	"github.com/krobus00/sj-trading/internal/service/notification"
	"github.com/krobus00/sj-trading/internal/service/order"
	"github.com/krobus00/sj-trading/internal/service/quote"
	"github.com/krobus00/sj-trading/internal/service/telegram"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type sessionOptions struct {
	// metrics serves /metrics on metrics.addr for long-running commands.
	metrics bool
}

// session holds a logged-in broker and the services built around it.
type session struct {
	simulation bool

	broker   entity.Broker
	db       *sqlx.DB
	nc       *nats.Conn
	events   *event.Publisher
	server   *infrastructure.HTTPServer
	telegram *telegram.Client
	notifier *notification.Manager
	orders   *order.Manager
	quotes   *quote.Manager
}

func openSession(ctx context.Context, simulation bool, opts sessionOptions) (*session, error) {
	s := &session{simulation: simulation}

	logrus.WithField("mode", config.ModeLabel(simulation)).Info("opening broker session")
	b, err := broker.Open(ctx, config.Env, simulation)
	if err != nil {
		return nil, err
	}
	s.broker = b
	b.SetDealHandler(logDeal)

	db, err := openDatabase(ctx)
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	s.db = db

	s.nc, s.events, err = openEvents(ctx)
	if err != nil {
		s.close(ctx)
		return nil, err
	}

	if opts.metrics {
		s.server = s.startMetricsServer()
	}

	s.telegram = newTelegramClient()
	if s.telegram != nil {
		s.notifier = notification.NewManager(s.telegram)
	} else {
		s.notifier = notification.NewManager(nil)
	}

	var journal order.Journal
	if s.db != nil {
		journal = repository.NewOrderHistoryRepository(s.db)
	}
	s.orders = order.NewManager(b, journal, s.events, simulation)

	s.quotes = quote.NewManager(b)
	s.quotes.SetPublisher(s.events)

	return s, nil
}

// cleanUpOps releases the session resources. The broker logs out last.
func (s *session) cleanUpOps() map[string]operation {
	return map[string]operation{
		"session": func(ctx context.Context) error {
			s.close(ctx)
			return nil
		},
	}
}

func (s *session) close(ctx context.Context) {
	if s.quotes != nil {
		if err := s.quotes.UnsubscribeAll(ctx); err != nil {
			logrus.Warnf("failed to unsubscribe quotes: %v", err)
		}
	}
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			logrus.Warnf("failed to stop http server: %v", err)
		}
	}
	if s.nc != nil {
		if err := infrastructure.CloseJetstream(s.nc); err != nil {
			logrus.Warnf("failed to close nats connection: %v", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			logrus.Warnf("failed to close database: %v", err)
		}
	}
	if s.broker != nil {
		if err := s.broker.Logout(ctx); err != nil {
			logrus.Warnf("broker logout failed: %v", err)
		}
	}
}

// fatalIfErr closes the session and exits non-zero when err is set.
func (s *session) fatalIfErr(ctx context.Context, err error, message string) {
	if err == nil {
		return
	}
	s.close(ctx)
	logrus.WithError(err).Fatal(message)
}

// openDatabase connects the configured database. An empty dsn disables persistence.
func openDatabase(ctx context.Context) (*sqlx.DB, error) {
	cfg := config.Env.Database
	if strings.TrimSpace(cfg.DSN) == "" {
		logrus.Debug("database dsn empty, persistence disabled")
		return nil, nil
	}

	db, err := infrastructure.NewDatabaseConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := infrastructure.MigrateUp(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if cfg.PingInterval > 0 {
		infrastructure.StartDatabaseHealthCheck(ctx, db, cfg.PingInterval)
	}

	return db, nil
}

// openEvents connects JetStream when a NATS url is configured. The returned publisher is a no-op otherwise.
func openEvents(ctx context.Context) (*nats.Conn, *event.Publisher, error) {
	if strings.TrimSpace(config.Env.NatsJetstream.URL) == "" {
		return nil, event.NewPublisher(nil), nil
	}

	nc, js, err := infrastructure.NewJetstream(config.Env.NatsJetstream)
	if err != nil {
		return nil, nil, err
	}

	publisher := event.NewPublisher(js)
	if err := publisher.JetstreamEventInit(ctx); err != nil {
		_ = infrastructure.CloseJetstream(nc)
		return nil, nil, err
	}

	return nc, publisher, nil
}

func (s *session) startMetricsServer() *infrastructure.HTTPServer {
	addr := strings.TrimSpace(config.Env.Metrics.Addr)
	if addr == "" {
		return nil
	}

	checks := map[string]infrastructure.ReadinessCheck{
		"broker": func(ctx context.Context) error {
			_, err := s.broker.Version(ctx)
			return err
		},
	}
	if s.db != nil {
		checks["database"] = s.db.PingContext
	}
	if s.nc != nil {
		checks["nats"] = func(context.Context) error {
			if !s.nc.IsConnected() {
				return nats.ErrConnectionClosed
			}
			return nil
		}
	}

	server := infrastructure.NewHTTPServer(addr, metrics.Handler(), checks)
	go func() {
		if err := server.Start(); err != nil {
			logrus.Errorf("http server stopped: %v", err)
		}
	}()
	return server
}

func newTelegramClient() *telegram.Client {
	cfg := config.Env.Telegram
	if !cfg.Enabled() {
		return nil
	}

	api, err := telegram.NewAPI(cfg)
	if err != nil {
		logrus.Warnf("telegram disabled: %v", err)
		return nil
	}
	return telegram.NewClient(api, cfg.ChatID)
}

func logDeal(deal entity.Deal) {
	logrus.WithFields(logrus.Fields{
		"order_id": deal.OrderID,
		"code":     deal.Code,
		"action":   deal.Action,
		"price":    deal.Price.String(),
		"quantity": deal.Quantity,
	}).Info("deal received")
}
