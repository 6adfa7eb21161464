package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/krobus00/sj-trading/internal/util"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func StartOrder(cmd *cobra.Command, args []string) {
	code := strings.ToUpper(args[0])
	rawAction, _ := cmd.Flags().GetString("action")
	rawPrice, _ := cmd.Flags().GetString("price")
	quantity, _ := cmd.Flags().GetInt64("qty")
	rawType, _ := cmd.Flags().GetString("type")
	simulation := simulationFlag(cmd)

	action, ok := entity.ParseAction(rawAction)
	if !ok {
		logrus.Fatalf("invalid action %q, expected buy or sell", rawAction)
	}
	price, err := decimal.NewFromString(rawPrice)
	if err != nil || !price.IsPositive() {
		logrus.Fatalf("invalid price %q", rawPrice)
	}
	if quantity <= 0 {
		logrus.Fatalf("invalid quantity %d", quantity)
	}
	securityType, ok := entity.ParseSecurityType(rawType)
	if !ok {
		logrus.Fatalf("invalid type %q, expected future or stock", rawType)
	}

	ctx := context.Background()
	s, err := openSession(ctx, simulation, sessionOptions{})
	util.ContinueOrFatal(err)
	defer s.close(ctx)

	fmt.Printf("Placing %s order: %s %d %s @ %s\n", envLabel(simulation), action, quantity, code, price.String())

	req := entity.OrderRequest{
		Action:    action,
		Price:     price,
		Quantity:  quantity,
		PriceType: entity.PriceTypeLimit,
		Source:    "cli",
	}

	var trade *entity.Trade
	if securityType == entity.SecurityTypeFuture {
		trade, err = s.orders.PlaceFuturesOrder(ctx, code, req)
	} else {
		trade, err = s.orders.PlaceStockOrder(ctx, code, req)
	}
	s.fatalIfErr(ctx, err, "failed to place order")

	fmt.Printf("Order Placed Successfully! ID: %s\n", trade.Order.ID)
	fmt.Printf("Status: %s\n", trade.Status.Status)
}

func StartListOrders(cmd *cobra.Command, args []string) {
	simulation := simulationFlag(cmd)

	ctx := context.Background()
	s, err := openSession(ctx, simulation, sessionOptions{})
	util.ContinueOrFatal(err)
	defer s.close(ctx)

	fmt.Printf("Fetching %s orders...\n", envLabel(simulation))
	trades, err := s.orders.ListTrades(ctx)
	s.fatalIfErr(ctx, err, "failed to fetch trades")
	if len(trades) == 0 {
		fmt.Println("No trades/orders found today.")
		return
	}

	fmt.Println("\n=== Active Trades/Orders ===")
	for _, trade := range trades {
		fmt.Println(formatTrade(trade))
	}
}

func StartUpdateOrder(cmd *cobra.Command, args []string) {
	orderID := args[0]
	price, err := decimal.NewFromString(args[1])
	if err != nil || !price.IsPositive() {
		logrus.Fatalf("invalid price %q", args[1])
	}
	simulation := simulationFlag(cmd)

	ctx := context.Background()
	s, err := openSession(ctx, simulation, sessionOptions{})
	util.ContinueOrFatal(err)
	defer s.close(ctx)

	fmt.Printf("Environment: %s\n", envLabel(simulation))
	fmt.Printf("Updating Order ID: %s to price: %s...\n", orderID, price.String())

	_, err = s.orders.UpdateOrderPrice(ctx, orderID, price)
	s.fatalIfErr(ctx, err, "failed to update order")
	fmt.Println("Update request sent successfully.")
}

func StartCancelOrder(cmd *cobra.Command, args []string) {
	orderID, _ := cmd.Flags().GetString("id")
	all, _ := cmd.Flags().GetBool("all")
	simulation := simulationFlag(cmd)

	if orderID == "" && !all {
		fmt.Println("Please specify an order ID (--id) or use --all to cancel all active orders.")
		return
	}

	ctx := context.Background()
	s, err := openSession(ctx, simulation, sessionOptions{})
	util.ContinueOrFatal(err)
	defer s.close(ctx)

	fmt.Printf("Environment: %s\n", envLabel(simulation))

	if all {
		fmt.Println("Cancelling ALL active orders...")
		count, err := s.orders.CancelAllOrders(ctx)
		fmt.Printf("Sent cancellation requests for %d order(s).\n", count)
		s.fatalIfErr(ctx, err, "failed to cancel order(s)")
		return
	}

	fmt.Printf("Cancelling Order ID: %s...\n", orderID)
	_, err = s.orders.CancelOrder(ctx, orderID)
	s.fatalIfErr(ctx, err, "failed to cancel order")
	fmt.Println("Cancellation request sent.")
}
