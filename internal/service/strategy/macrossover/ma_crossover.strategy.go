package macrossover

import (
	"context"
	"errors"
	"time"

	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultWindow       = 5
	defaultQuantity     = 1
	defaultPollInterval = 500 * time.Millisecond
)

var ErrNotEnoughData = errors.New("not enough data")

type QuoteSource interface {
	Contract(ctx context.Context, securityType entity.SecurityType, code string) (*entity.Contract, error)
	Subscribe(ctx context.Context, codes []string, securityType entity.SecurityType, recover bool) error
	Frame(market entity.Market) []entity.Tick
	UnsubscribeAll(ctx context.Context) error
}

type OrderPlacer interface {
	PlaceFuturesOrder(ctx context.Context, code string, req entity.OrderRequest) (*entity.Trade, error)
}

type Config struct {
	Window       int
	Quantity     int64
	PollInterval time.Duration
}

type Signal struct {
	MA       decimal.Decimal
	Current  decimal.Decimal
	Previous decimal.Decimal
	Cross    bool
}

// Strategy buys once when the last price crosses above its moving average.
type Strategy struct {
	quotes QuoteSource
	orders OrderPlacer
	cfg    Config
}

func New(quotes QuoteSource, orders OrderPlacer, cfg Config) *Strategy {
	if cfg.Window < 2 {
		cfg.Window = defaultWindow
	}
	if cfg.Quantity <= 0 {
		cfg.Quantity = defaultQuantity
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	return &Strategy{quotes: quotes, orders: orders, cfg: cfg}
}

// Run polls the frame of symbol until a crossover places an order or ctx is done.
// A cancelled run returns a nil trade and no error.
func (s *Strategy) Run(ctx context.Context, symbol string) (*entity.Trade, error) {
	logger := logrus.WithFields(logrus.Fields{"symbol": symbol, "window": s.cfg.Window})
	logger.Info("starting ma crossover strategy")

	if err := s.quotes.Subscribe(ctx, []string{symbol}, entity.SecurityTypeFuture, true); err != nil {
		return nil, err
	}
	defer s.stop()

	codes := map[string]struct{}{symbol: {}}
	contract, err := s.quotes.Contract(ctx, entity.SecurityTypeFuture, symbol)
	if err != nil {
		return nil, err
	}
	if contract != nil && contract.Code != "" {
		codes[contract.Code] = struct{}{}
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	lastCount := 0
	for {
		prices := s.prices(codes)
		if len(prices) > lastCount {
			lastCount = len(prices)

			signal, err := Evaluate(prices, s.cfg.Window)
			if errors.Is(err, ErrNotEnoughData) {
				logger.Infof("not enough data for %dMA, count: %d", s.cfg.Window, len(prices))
			} else {
				logger.WithFields(logrus.Fields{
					"current":  signal.Current.StringFixed(2),
					"ma":       signal.MA.StringFixed(2),
					"previous": signal.Previous.StringFixed(2),
				}).Info("ma crossover evaluated")
			}

			if err == nil && signal.Cross {
				logger.Info("price crossed above moving average")
				trade, err := s.orders.PlaceFuturesOrder(ctx, symbol, entity.OrderRequest{
					Action:    entity.ActionBuy,
					Price:     signal.Current.Round(2),
					Quantity:  s.cfg.Quantity,
					PriceType: entity.PriceTypeLimit,
					OrderType: entity.OrderTypeROD,
					Source:    "ma_crossover",
				})
				if err != nil {
					return nil, err
				}
				return trade, nil
			}
		}

		select {
		case <-ctx.Done():
			logger.Info("strategy interrupted")
			return nil, nil
		case <-ticker.C:
		}
	}
}

// Evaluate reports the moving average of the last window prices and whether the
// last price crossed above it from the previous one.
func Evaluate(prices []decimal.Decimal, window int) (Signal, error) {
	if len(prices) < window || window < 2 {
		return Signal{}, ErrNotEnoughData
	}

	tail := prices[len(prices)-window:]
	ma := decimal.Sum(tail[0], tail[1:]...).Div(decimal.NewFromInt(int64(window)))
	current := prices[len(prices)-1]
	previous := prices[len(prices)-2]

	return Signal{
		MA:       ma,
		Current:  current,
		Previous: previous,
		Cross:    previous.LessThan(ma) && current.GreaterThan(ma),
	}, nil
}

// prices returns the closes of ticks carrying any of codes, oldest first.
func (s *Strategy) prices(codes map[string]struct{}) []decimal.Decimal {
	frame := s.quotes.Frame(entity.MarketFOP)
	prices := make([]decimal.Decimal, 0, len(frame))
	for _, tick := range frame {
		if _, ok := codes[tick.Code]; ok {
			prices = append(prices, tick.Close)
		}
	}
	return prices
}

func (s *Strategy) stop() {
	logrus.Info("stopping strategy, unsubscribing")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.quotes.UnsubscribeAll(ctx); err != nil {
		logrus.Errorf("failed to unsubscribe: %v", err)
	}
}
