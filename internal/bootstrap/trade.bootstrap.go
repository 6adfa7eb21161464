package bootstrap

import (
	"context"
	"fmt"

	"github.com/krobus00/sj-trading/internal/config"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/krobus00/sj-trading/internal/service/strategy/macrossover"
	"github.com/krobus00/sj-trading/internal/util"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const strategyMA = "ma"

func StartTrade(cmd *cobra.Command, args []string) {
	strategyName, _ := cmd.Flags().GetString("strategy")
	symbol, _ := cmd.Flags().GetString("symbol")

	if strategyName != strategyMA {
		logrus.Fatalf("Unknown strategy: %s", strategyName)
	}

	ctx := context.Background()
	s, err := openSession(ctx, true, sessionOptions{metrics: true})
	util.ContinueOrFatal(err)

	strategyConfig := config.Env.Strategy.MACrossover
	strategy := macrossover.New(s.quotes, s.orders, macrossover.Config{
		Window:       strategyConfig.Window,
		Quantity:     strategyConfig.Quantity,
		PollInterval: strategyConfig.PollInterval,
	})

	err = runUntilShutdown(ctx, s.cleanUpOps(), func(ctx context.Context) error {
		trade, err := strategy.Run(ctx, symbol)
		if err != nil {
			return err
		}
		if trade != nil {
			fmt.Printf("Order Placed: %s\n", formatTrade(*trade))
		}
		return nil
	})
	util.ContinueOrFatal(err)
}

func StartTestOrder(cmd *cobra.Command, args []string) {
	rawType, _ := cmd.Flags().GetString("type")
	securityType, ok := entity.ParseSecurityType(rawType)
	if !ok {
		util.ContinueOrFatal(fmt.Errorf("invalid type %q, expected future or stock", rawType))
	}

	ctx := context.Background()
	s, err := openSession(ctx, true, sessionOptions{})
	util.ContinueOrFatal(err)
	defer s.close(ctx)

	req := entity.OrderRequest{
		Action:   entity.ActionBuy,
		Quantity: 1,
		Source:   "test_order",
	}

	var trade *entity.Trade
	if securityType == entity.SecurityTypeFuture {
		fmt.Println("Placing test Future order (TXFR1)...")
		req.Price = decimal.NewFromInt(20000)
		trade, err = s.orders.PlaceFuturesOrder(ctx, "TXFR1", req)
	} else {
		fmt.Println("Placing test Stock order (2890)...")
		req.Price = decimal.NewFromInt(10)
		trade, err = s.orders.PlaceStockOrder(ctx, "2890", req)
	}
	s.fatalIfErr(ctx, err, "failed to place test order")
	fmt.Printf("Order Placed: %s\n", formatTrade(*trade))
}
