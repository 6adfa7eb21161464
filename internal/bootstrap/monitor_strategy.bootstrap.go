package bootstrap

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/krobus00/sj-trading/internal/config"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/krobus00/sj-trading/internal/service/gsheet"
	"github.com/krobus00/sj-trading/internal/service/strategy/stoploss"
	"github.com/krobus00/sj-trading/internal/util"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartMonitorStrategy(cmd *cobra.Command, args []string) {
	rawDirection, _ := cmd.Flags().GetString("direction")
	simulation := simulationFlag(cmd)

	direction, ok := entity.ParseDirection(strings.ToLower(rawDirection))
	if !ok {
		logrus.Fatalf("Invalid direction: %s. Must be 'long' or 'short'.", rawDirection)
	}
	quantity, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		logrus.Fatalf("invalid quantity %q", args[1])
	}
	stopLoss, err := decimal.NewFromString(args[2])
	if err != nil {
		logrus.Fatalf("invalid stop loss %q", args[2])
	}
	takeProfit, err := decimal.NewFromString(args[3])
	if err != nil {
		logrus.Fatalf("invalid take profit %q", args[3])
	}

	monitorConfig := stoploss.Config{
		Symbol:     strings.ToUpper(args[0]),
		Quantity:   quantity,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Direction:  direction,
		LockTTL:    config.Env.Strategy.StopLoss.LockTTL,
	}
	util.ContinueOrFatal(monitorConfig.Validate())

	ctx := context.Background()
	s, err := openSession(ctx, simulation, sessionOptions{metrics: true})
	util.ContinueOrFatal(err)

	deps := stoploss.Dependencies{
		Orders:   s.orders,
		Quotes:   s.quotes,
		Notifier: s.notifier,
		Events:   s.events,
	}

	ops := s.cleanUpOps()
	if dsn := config.Env.Redis.CacheDSN; dsn != "" {
		store, err := stoploss.NewRedisStateStore(dsn)
		util.ContinueOrFatal(err)
		deps.Store = store
		ops["redis state store"] = func(ctx context.Context) error {
			return store.Close()
		}
	}

	sheetConfig := config.Env.GoogleSheet
	if sheetConfig.URL != "" && sheetConfig.RecordsTab != "" {
		deps.Journal = gsheet.NewTradeJournal(gsheet.NewClient(ctx, sheetConfig.CredentialsPath), sheetConfig.URL, sheetConfig.RecordsTab)
	}

	monitor, err := stoploss.NewMonitor(monitorConfig, deps)
	util.ContinueOrFatal(err)
	s.broker.SetDealHandler(func(deal entity.Deal) {
		logDeal(deal)
		monitor.OnDeal(deal)
	})

	err = runUntilShutdown(ctx, ops, monitor.Run)
	util.ContinueOrFatal(err)
	fmt.Println("Strategy stopped.")
}
