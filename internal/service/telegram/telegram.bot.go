package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/krobus00/sj-trading/internal/config"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/krobus00/sj-trading/internal/metrics"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultPollTimeout     = 10
	defaultAPIErrorBackoff = 2 * time.Second
	defaultErrorBackoff    = 5 * time.Second
	infoFuturesLimit       = 10
	infoStocksLimit        = 5
)

type OrderService interface {
	ListActiveTrades(ctx context.Context) ([]entity.Trade, error)
	CancelAllOrders(ctx context.Context) (int, error)
	CancelOrder(ctx context.Context, orderID string) (*entity.Trade, error)
	UpdateOrderPrice(ctx context.Context, orderID string, price decimal.Decimal) (*entity.Trade, error)
	PlaceStockOrder(ctx context.Context, code string, req entity.OrderRequest) (*entity.Trade, error)
	PlaceFuturesOrder(ctx context.Context, code string, req entity.OrderRequest) (*entity.Trade, error)
}

type ContractResolver interface {
	Contract(ctx context.Context, securityType entity.SecurityType, code string) (*entity.Contract, error)
}

type ContractSearcher interface {
	Search(ctx context.Context, query string) (entity.ContractSearchResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, title, message string)
}

type BotDependencies struct {
	Orders    OrderService
	Contracts ContractResolver
	Search    ContractSearcher
	Notifier  Notifier
}

type commandHandler func(ctx context.Context, args []string) (string, error)

// Bot long-polls Telegram and executes order management commands from the authorized chat.
type Bot struct {
	api        API
	client     *Client
	deps       BotDependencies
	simulation bool

	pollTimeout     int
	apiErrorBackoff time.Duration
	errorBackoff    time.Duration
	commands        map[string]commandHandler
}

func NewBot(api API, cfg config.TelegramConfig, deps BotDependencies, simulation bool) (*Bot, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	b := &Bot{
		api:             api,
		client:          NewClient(api, cfg.ChatID),
		deps:            deps,
		simulation:      simulation,
		pollTimeout:     pollTimeout,
		apiErrorBackoff: defaultAPIErrorBackoff,
		errorBackoff:    defaultErrorBackoff,
	}
	b.commands = map[string]commandHandler{
		"/start":     b.cmdHelp,
		"/help":      b.cmdHelp,
		"/list":      b.cmdList,
		"/cancelall": b.cmdCancelAll,
		"/cancel":    b.cmdCancel,
		"/update":    b.cmdUpdate,
		"/order":     b.cmdOrder,
		"/info":      b.cmdInfo,
	}

	return b, nil
}

// Run polls updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if b.deps.Notifier != nil {
		b.deps.Notifier.Notify(ctx, fmt.Sprintf("Bot Started [%s]", config.ModeLabel(b.simulation)), "Telegram listener is active and waiting for commands.")
	}

	offset := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		updateConfig := tgbotapi.NewUpdate(offset)
		updateConfig.Timeout = b.pollTimeout

		updates, err := b.api.GetUpdates(updateConfig)
		if err != nil {
			wait := b.errorBackoff
			var apiErr *tgbotapi.Error
			if errors.As(err, &apiErr) {
				wait = b.apiErrorBackoff
			}
			logrus.WithField("retry_in", wait.String()).Warnf("telegram get updates failed: %v", err)

			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate executes the command of an update coming from the authorized chat.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	message := update.Message
	if message == nil || message.Chat == nil || strings.TrimSpace(message.Text) == "" {
		return
	}

	text := strings.TrimSpace(message.Text)
	if message.Chat.ID != b.client.ChatID() {
		logrus.WithFields(logrus.Fields{
			"chat_id": message.Chat.ID,
			"text":    text,
		}).Warn("unauthorized telegram access attempt")
		return
	}

	reply := b.execute(ctx, text)
	if reply == "" {
		return
	}
	if err := b.client.SendMarkdown(ctx, reply); err != nil {
		logrus.Errorf("failed to send bot reply: %v", err)
	}
}

func (b *Bot) execute(ctx context.Context, text string) string {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return ""
	}

	command := strings.ToLower(parts[0])
	if idx := strings.Index(command, "@"); idx > 0 {
		command = command[:idx]
	}
	logrus.WithField("command", command).Info("received telegram command")

	handler, ok := b.commands[command]
	if !ok {
		metrics.BotCommandsTotal.WithLabelValues("unknown").Inc()
		return "❌ Unknown command. Type /help for list."
	}
	metrics.BotCommandsTotal.WithLabelValues(command).Inc()

	reply, err := handler(ctx, parts[1:])
	if err != nil {
		logrus.WithField("command", command).Errorf("telegram command failed: %v", err)
		return fmt.Sprintf("❌ Error: %v", err)
	}
	return reply
}

func (b *Bot) cmdHelp(ctx context.Context, args []string) (string, error) {
	return fmt.Sprintf("🤖 *SJ-Trading Bot (%s)*\n\n", config.ModeLabel(b.simulation)) +
		"/list - List active orders\n" +
		"/order <code> <buy/sell> <price> <qty> - Place limit order\n" +
		"/update <id> <price> - Update order price\n" +
		"/cancel <id> - Cancel specific order\n" +
		"/cancelall - Cancel all active orders\n" +
		"/info <query> - Search for contract", nil
}

func (b *Bot) cmdList(ctx context.Context, args []string) (string, error) {
	trades, err := b.deps.Orders.ListActiveTrades(ctx)
	if err != nil {
		return "", err
	}
	if len(trades) == 0 {
		return "📝 No active orders found.", nil
	}

	lines := []string{fmt.Sprintf("📊 *Active Orders (%s)*", config.ModeLabel(b.simulation))}
	for _, trade := range trades {
		lines = append(lines, fmt.Sprintf("\nID: `%s`\n%s %s %d @ %s\nStatus: %s",
			trade.Order.ID,
			trade.Contract.Code,
			trade.Order.Action,
			trade.Order.Quantity,
			trade.DisplayPrice().String(),
			trade.Status.Status,
		))
	}
	return strings.Join(lines, "\n"), nil
}

func (b *Bot) cmdCancelAll(ctx context.Context, args []string) (string, error) {
	count, err := b.deps.Orders.CancelAllOrders(ctx)
	if err != nil && count == 0 {
		return "", err
	}
	if err != nil {
		logrus.Warnf("some cancellations failed: %v", err)
	}
	return fmt.Sprintf("🗑️ Sent cancellation requests for %d order(s).", count), nil
}

func (b *Bot) cmdCancel(ctx context.Context, args []string) (string, error) {
	if len(args) < 1 {
		return "❌ Usage: `/cancel <id>`", nil
	}

	if _, err := b.deps.Orders.CancelOrder(ctx, args[0]); err != nil {
		return "", err
	}
	return fmt.Sprintf("🗑️ Cancellation request sent for Order `%s`.", args[0]), nil
}

func (b *Bot) cmdUpdate(ctx context.Context, args []string) (string, error) {
	if len(args) < 2 {
		return "❌ Usage: `/update <id> <price>`", nil
	}

	price, err := decimal.NewFromString(args[1])
	if err != nil || !price.IsPositive() {
		return fmt.Sprintf("❌ Invalid price: %s", args[1]), nil
	}

	if _, err := b.deps.Orders.UpdateOrderPrice(ctx, args[0], price); err != nil {
		return "", err
	}
	return fmt.Sprintf("✏️ Update request sent: Order `%s` to price `%s`.", args[0], price.String()), nil
}

func (b *Bot) cmdOrder(ctx context.Context, args []string) (string, error) {
	const usage = "❌ Usage: `/order <code> <buy/sell> <price> <qty>`"
	if len(args) < 4 {
		return usage, nil
	}

	code := strings.ToUpper(args[0])
	action, ok := entity.ParseAction(args[1])
	if !ok {
		return usage, nil
	}
	price, err := decimal.NewFromString(args[2])
	if err != nil || !price.IsPositive() {
		return fmt.Sprintf("❌ Invalid price: %s", args[2]), nil
	}
	quantity, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil || quantity <= 0 {
		return fmt.Sprintf("❌ Invalid quantity: %s", args[3]), nil
	}

	futures, err := b.deps.Contracts.Contract(ctx, entity.SecurityTypeFuture, code)
	if err != nil {
		return "", err
	}

	req := entity.OrderRequest{
		Action:    action,
		Price:     price,
		Quantity:  quantity,
		PriceType: entity.PriceTypeLimit,
		OrderType: entity.OrderTypeROD,
		Source:    "telegram",
	}

	var trade *entity.Trade
	kind := "Stock"
	if futures != nil {
		kind = "Future"
		trade, err = b.deps.Orders.PlaceFuturesOrder(ctx, code, req)
	} else {
		trade, err = b.deps.Orders.PlaceStockOrder(ctx, code, req)
	}
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("✅ %s %s Limit Order Placed: %s %d %s @ %s\nID: `%s`\nStatus: %s",
		config.ModeLabel(b.simulation), kind, action, quantity, code, price.String(), trade.Order.ID, trade.Status.Status), nil
}

func (b *Bot) cmdInfo(ctx context.Context, args []string) (string, error) {
	if len(args) < 1 {
		return "❌ Usage: `/info <query>`", nil
	}

	if b.deps.Search == nil {
		return "❌ Contract search is not configured.", nil
	}

	query := strings.Join(args, " ")
	result, err := b.deps.Search.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if result.Empty() {
		return fmt.Sprintf("❌ No results found for '%s'.", query), nil
	}

	lines := make([]string, 0)
	if len(result.Futures) > 0 {
		lines = append(lines, "📈 *Futures*")
		for i, future := range result.Futures {
			if i == infoFuturesLimit {
				break
			}
			lines = append(lines, fmt.Sprintf("`%s` - %s", future.Symbol, future.Name))
		}
	}
	if len(result.Stocks) > 0 {
		lines = append(lines, "🏢 *Stocks*")
		for i, stock := range result.Stocks {
			if i == infoStocksLimit {
				break
			}
			lines = append(lines, fmt.Sprintf("`%s` - %s", stock.Code, stock.Name))
		}
	}
	return strings.Join(lines, "\n"), nil
}
