package telegram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/krobus00/sj-trading/internal/config"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/krobus00/sj-trading/internal/service/broker"
	"github.com/krobus00/sj-trading/internal/service/order"
)

const authorizedChat int64 = 42

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	offsets  []int
	batches  [][]tgbotapi.Update
	errs     []error
	onDrain  func()
	failMode string
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, errors.New("unexpected chattable")
	}
	if f.failMode != "" && msg.ParseMode == f.failMode {
		return tgbotapi.Message{}, &tgbotapi.Error{Code: http.StatusBadRequest, Message: "can't parse entities"}
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeAPI) GetUpdates(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, cfg.Offset)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		f.mu.Unlock()
		return nil, err
	}
	if len(f.batches) > 0 {
		batch := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return batch, nil
	}
	onDrain := f.onDrain
	f.mu.Unlock()

	if onDrain != nil {
		onDrain()
	}
	return nil, nil
}

func (f *fakeAPI) lastText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Text
}

type futuresOnly struct{}

func (futuresOnly) Contract(ctx context.Context, securityType entity.SecurityType, code string) (*entity.Contract, error) {
	if securityType == entity.SecurityTypeFuture && strings.HasSuffix(code, "R1") {
		return &entity.Contract{Code: code, SecurityType: entity.SecurityTypeFuture}, nil
	}
	return nil, nil
}

type staticSearch struct {
	result entity.ContractSearchResult
}

func (s staticSearch) Search(ctx context.Context, query string) (entity.ContractSearchResult, error) {
	return s.result, nil
}

type noopNotifier struct {
	titles []string
}

func (n *noopNotifier) Notify(ctx context.Context, title, message string) {
	n.titles = append(n.titles, title)
}

func newTestBot(t *testing.T) (*Bot, *fakeAPI, *broker.PaperBroker) {
	t.Helper()

	paper := broker.NewPaperBroker(nil)
	t.Cleanup(func() { _ = paper.Logout(context.Background()) })

	futures := make([]entity.FutureContractInfo, 0, 12)
	for i := 0; i < 12; i++ {
		futures = append(futures, entity.FutureContractInfo{Symbol: "CDF" + string(rune('A'+i)), Name: "台積電期貨"})
	}

	api := &fakeAPI{}
	bot, err := NewBot(api, config.TelegramConfig{BotToken: "token", ChatID: authorizedChat}, BotDependencies{
		Orders:    order.NewManager(paper, nil, nil, true),
		Contracts: futuresOnly{},
		Search: staticSearch{result: entity.ContractSearchResult{
			Futures: futures,
			Stocks:  []entity.StockContractInfo{{Code: "2330", Name: "台積電"}},
		}},
		Notifier: &noopNotifier{},
	}, true)
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	bot.apiErrorBackoff = time.Millisecond
	bot.errorBackoff = time.Millisecond
	return bot, api, paper
}

func update(id int, chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message:  &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text},
	}
}

func TestBotIgnoresUnauthorizedChats(t *testing.T) {
	bot, api, _ := newTestBot(t)

	bot.HandleUpdate(context.Background(), update(1, 7, "/cancelall"))
	if len(api.sent) != 0 {
		t.Fatalf("expected no reply to unauthorized chat, got %v", api.sent)
	}
}

func TestBotCommands(t *testing.T) {
	bot, api, paper := newTestBot(t)
	ctx := context.Background()

	tests := []struct {
		text string
		want string
	}{
		{text: "/help", want: "SJ-Trading Bot (SIMULATION)"},
		{text: "/list", want: "No active orders found."},
		{text: "/order TXFR1 buy 20000 1", want: "SIMULATION Future Limit Order Placed: Buy 1 TXFR1 @ 20000"},
		{text: "/order 2890 sell 10.5 2", want: "SIMULATION Stock Limit Order Placed: Sell 2 2890 @ 10.5"},
		{text: "/order 2890 hold 10 1", want: "❌ Usage: `/order <code> <buy/sell> <price> <qty>`"},
		{text: "/order 2890", want: "❌ Usage: `/order <code> <buy/sell> <price> <qty>`"},
		{text: "/update", want: "❌ Usage: `/update <id> <price>`"},
		{text: "/update abc xyz", want: "❌ Invalid price: xyz"},
		{text: "/update missing 10", want: "❌ Error: order ID missing not found."},
		{text: "/cancel", want: "❌ Usage: `/cancel <id>`"},
		{text: "/info", want: "❌ Usage: `/info <query>`"},
		{text: "/whatever", want: "❌ Unknown command. Type /help for list."},
	}

	for _, tt := range tests {
		bot.HandleUpdate(ctx, update(1, authorizedChat, tt.text))
		if got := api.lastText(); !strings.Contains(got, tt.want) {
			t.Fatalf("%s: reply %q does not contain %q", tt.text, got, tt.want)
		}
	}

	trades, _ := paper.ListTrades(ctx)
	if len(trades) != 2 || trades[0].Contract.SecurityType != entity.SecurityTypeFuture || trades[1].Contract.SecurityType != entity.SecurityTypeStock {
		t.Fatalf("unexpected trades: %+v", trades)
	}

	bot.HandleUpdate(ctx, update(2, authorizedChat, "/list"))
	if got := api.lastText(); !strings.Contains(got, "ID: `"+trades[0].Order.ID+"`") || !strings.Contains(got, "TXFR1 Buy 1 @ 20000") || !strings.Contains(got, "Status: Submitted") {
		t.Fatalf("unexpected list: %q", got)
	}

	bot.HandleUpdate(ctx, update(3, authorizedChat, "/update "+trades[1].Order.ID+" 11"))
	if got := api.lastText(); !strings.Contains(got, "to price `11`") {
		t.Fatalf("unexpected update reply: %q", got)
	}

	bot.HandleUpdate(ctx, update(4, authorizedChat, "/cancel "+trades[0].Order.ID))
	if got := api.lastText(); !strings.Contains(got, "Cancellation request sent") {
		t.Fatalf("unexpected cancel reply: %q", got)
	}

	bot.HandleUpdate(ctx, update(5, authorizedChat, "/cancelall@sj_bot"))
	if got := api.lastText(); !strings.Contains(got, "for 1 order(s)") {
		t.Fatalf("unexpected cancelall reply: %q", got)
	}
}

func TestBotInfoLimitsResults(t *testing.T) {
	bot, api, _ := newTestBot(t)

	bot.HandleUpdate(context.Background(), update(1, authorizedChat, "/info 台積"))
	reply := api.lastText()
	if strings.Count(reply, "台積電期貨") != infoFuturesLimit {
		t.Fatalf("expected %d futures, got %q", infoFuturesLimit, reply)
	}
	if !strings.Contains(reply, "`2330` - 台積電") {
		t.Fatalf("expected stock line, got %q", reply)
	}
}

func TestBotRunAdvancesOffsetAndBacksOff(t *testing.T) {
	bot, api, _ := newTestBot(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api.errs = []error{&tgbotapi.Error{Code: 502, Message: "bad gateway"}, errors.New("network down")}
	api.batches = [][]tgbotapi.Update{{update(10, authorizedChat, "/help"), update(11, 7, "/cancelall")}}
	api.onDrain = cancel

	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.offsets) != 4 || api.offsets[3] != 12 {
		t.Fatalf("unexpected offsets: %v", api.offsets)
	}
	if len(api.sent) != 1 {
		t.Fatalf("expected only the authorized command to be answered, got %d replies", len(api.sent))
	}
	if notifier := bot.deps.Notifier.(*noopNotifier); len(notifier.titles) != 1 || notifier.titles[0] != "Bot Started [SIMULATION]" {
		t.Fatalf("unexpected start notification: %v", notifier.titles)
	}
}

func TestClientFallsBackToPlainText(t *testing.T) {
	api := &fakeAPI{failMode: tgbotapi.ModeMarkdown}
	client := NewClient(api, authorizedChat)

	if err := client.SendMarkdown(context.Background(), "under_score"); err != nil {
		t.Fatalf("SendMarkdown: %v", err)
	}
	if len(api.sent) != 1 || api.sent[0].ParseMode != "" || api.sent[0].ChatID != authorizedChat {
		t.Fatalf("unexpected sends: %+v", api.sent)
	}
}

func TestNewAPIWithEndpoint(t *testing.T) {
	var sentText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"sj","username":"sj_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			body, _ := io.ReadAll(r.Body)
			values, _ := url.ParseQuery(string(body))
			sentText = values.Get("text")
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}))
	defer server.Close()

	if _, err := NewAPIWithEndpoint(config.TelegramConfig{}, server.URL+"/bot%s/%s"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}

	api, err := NewAPIWithEndpoint(config.TelegramConfig{BotToken: "token", ChatID: authorizedChat}, server.URL+"/bot%s/%s")
	if err != nil {
		t.Fatalf("NewAPIWithEndpoint: %v", err)
	}
	if err := NewClient(api, authorizedChat).SendMarkdown(context.Background(), "🔔 *hello*"); err != nil {
		t.Fatalf("SendMarkdown: %v", err)
	}
	if sentText != "🔔 *hello*" {
		t.Fatalf("unexpected text: %q", sentText)
	}
}
