package broker

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/krobus00/sj-trading/internal/config"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/shopspring/decimal"
)

type fakeGateway struct {
	t        *testing.T
	mu       sync.Mutex
	requests []string
	commands []entity.GatewayStreamCommand
	streamCh chan *websocket.Conn
	server   *httptest.Server
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()

	g := &fakeGateway{t: t, streamCh: make(chan *websocket.Conn, 1)}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/stream", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go func() {
			for {
				var command entity.GatewayStreamCommand
				if err := conn.ReadJSON(&command); err != nil {
					return
				}
				g.mu.Lock()
				g.commands = append(g.commands, command)
				g.mu.Unlock()
			}
		}()
		g.streamCh <- conn
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		g.mu.Lock()
		g.requests = append(g.requests, r.Method+" "+r.URL.Path)
		g.mu.Unlock()

		if r.Header.Get(gatewayHeaderAPIKey) != "key" {
			writeEnvelope(w, http.StatusUnauthorized, 401, "bad api key", nil)
			return
		}
		expected := hmacSHA256Hex("secret", r.Header.Get(gatewayHeaderTimestamp)+r.Method+r.URL.RequestURI()+string(body))
		if r.Header.Get(gatewayHeaderSignature) != expected {
			writeEnvelope(w, http.StatusUnauthorized, 401, "bad signature", nil)
			return
		}

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/login":
			var req entity.GatewayLoginRequest
			_ = json.Unmarshal(body, &req)
			if !req.Simulation {
				writeEnvelope(w, http.StatusBadRequest, 10, "expected simulation", nil)
				return
			}
			writeEnvelope(w, http.StatusOK, 0, "", entity.GatewayLoginResponse{Token: "tok-1"})
		case r.URL.Path == "/v1/logout":
			writeEnvelope(w, http.StatusOK, 0, "", nil)
		case r.URL.Path == "/v1/version":
			writeEnvelope(w, http.StatusOK, 0, "", entity.GatewayVersionResponse{Version: "1.2.3"})
		case r.URL.Path == "/v1/contracts/FUT/TXFR1":
			writeEnvelope(w, http.StatusOK, 0, "", entity.Contract{Code: "TXFR1", Name: "臺股期貨", ReferencePrice: decimal.NewFromInt(20000)})
		case strings.HasPrefix(r.URL.Path, "/v1/contracts/"):
			writeEnvelope(w, http.StatusNotFound, 404, "contract not found", nil)
		case r.URL.Path == "/v1/ticks":
			if r.URL.Query().Get("code") != "TXFR1" || r.URL.Query().Get("date") != "2026-03-02" {
				writeEnvelope(w, http.StatusBadRequest, 1, "bad query", nil)
				return
			}
			writeEnvelope(w, http.StatusOK, 0, "", entity.GatewayTicks{
				TS:       []int64{1_000_000_000, 2_000_000_000},
				Close:    []decimal.Decimal{decimal.NewFromInt(100), decimal.NewFromInt(101)},
				Volume:   []int64{1, 2},
				TickType: []int8{1, 2},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/orders":
			var req entity.GatewayPlaceOrderRequest
			_ = json.Unmarshal(body, &req)
			writeEnvelope(w, http.StatusOK, 0, "", entity.Trade{
				Contract: req.Contract,
				Order:    entity.Order{ID: "o1", Action: req.Order.Action, Price: req.Order.Price, Quantity: req.Order.Quantity},
				Status:   entity.TradeStatus{Status: entity.OrderStatusPendingSubmit},
			})
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/orders/o1":
			writeEnvelope(w, http.StatusOK, 0, "", entity.Trade{Order: entity.Order{ID: "o1"}, Status: entity.TradeStatus{Status: entity.OrderStatusCancelled}})
		case r.Method == http.MethodPut && r.URL.Path == "/v1/orders/o1":
			var req entity.GatewayUpdateOrderRequest
			_ = json.Unmarshal(body, &req)
			writeEnvelope(w, http.StatusOK, 0, "", entity.Trade{Order: entity.Order{ID: "o1"}, Status: entity.TradeStatus{Status: entity.OrderStatusSubmitted, ModifiedPrice: req.Price}})
		case r.URL.Path == "/v1/orders/status":
			writeEnvelope(w, http.StatusOK, 0, "", nil)
		case r.URL.Path == "/v1/trades":
			writeEnvelope(w, http.StatusOK, 0, "", []entity.Trade{{Order: entity.Order{ID: "o1"}}})
		case r.URL.Path == "/v1/positions":
			writeEnvelope(w, http.StatusOK, 0, "", []entity.Position{{Code: "TXFR1", Direction: entity.ActionBuy, Quantity: 2, Price: decimal.NewFromInt(20000)}})
		default:
			writeEnvelope(w, http.StatusNotFound, 404, "not found", nil)
		}
	})

	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)
	return g
}

func writeEnvelope(w http.ResponseWriter, status, code int, message string, data any) {
	raw, _ := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(entity.GatewayResponse{Code: code, Message: message, Data: raw})
}

func newTestGatewayBroker(t *testing.T, g *fakeGateway) *GatewayBroker {
	t.Helper()

	b, err := NewGatewayBroker(config.BrokerConfig{
		BaseURL:   g.server.URL,
		APIKey:    "key",
		SecretKey: "secret",
		Timeout:   2 * time.Second,
	}, true)
	if err != nil {
		t.Fatalf("NewGatewayBroker: %v", err)
	}
	return b
}

func TestDefaultStreamURL(t *testing.T) {
	b, err := NewGatewayBroker(config.BrokerConfig{BaseURL: "https://gateway.example.com/api/"}, true)
	if err != nil {
		t.Fatalf("NewGatewayBroker: %v", err)
	}
	if b.wsURL != "wss://gateway.example.com/api/v1/stream" {
		t.Fatalf("unexpected ws url: %s", b.wsURL)
	}
}

func TestGatewayBrokerRESTOperations(t *testing.T) {
	ctx := context.Background()
	g := newFakeGateway(t)
	b := newTestGatewayBroker(t, g)

	if err := b.Login(ctx); err != nil {
		t.Fatalf("Login: %v", err)
	}
	defer b.Logout(ctx)

	version, err := b.Version(ctx)
	if err != nil || version != "1.2.3" {
		t.Fatalf("Version = %q (%v)", version, err)
	}

	contract, err := b.Contract(ctx, entity.SecurityTypeFuture, "TXFR1")
	if err != nil || contract == nil {
		t.Fatalf("Contract: %+v (%v)", contract, err)
	}
	if contract.SecurityType != entity.SecurityTypeFuture || contract.Name != "臺股期貨" {
		t.Fatalf("unexpected contract: %+v", contract)
	}

	missing, err := b.Contract(ctx, entity.SecurityTypeStock, "9999")
	if err != nil || missing != nil {
		t.Fatalf("expected nil contract for unknown code, got %+v (%v)", missing, err)
	}

	ticks, err := b.Ticks(ctx, *contract, "2026-03-02")
	if err != nil || len(ticks) != 2 {
		t.Fatalf("Ticks: %v (%v)", ticks, err)
	}
	if !ticks[1].Close.Equal(decimal.NewFromInt(101)) || ticks[1].TickType != entity.TickTypeSell || ticks[0].Datetime.Unix() != 1 {
		t.Fatalf("unexpected ticks: %+v", ticks)
	}

	trade, err := b.PlaceOrder(ctx, *contract, entity.OrderRequest{Action: entity.ActionBuy, Price: decimal.NewFromInt(20000), Quantity: 1, PriceType: entity.PriceTypeLimit, OrderType: entity.OrderTypeROD})
	if err != nil || trade.Order.ID != "o1" || trade.Contract.Code != "TXFR1" {
		t.Fatalf("PlaceOrder: %+v (%v)", trade, err)
	}

	updated, err := b.UpdateOrder(ctx, *trade, decimal.NewFromInt(19990))
	if err != nil || !updated.Status.ModifiedPrice.Equal(decimal.NewFromInt(19990)) {
		t.Fatalf("UpdateOrder: %+v (%v)", updated, err)
	}

	cancelled, err := b.CancelOrder(ctx, *trade)
	if err != nil || cancelled.Status.Status != entity.OrderStatusCancelled {
		t.Fatalf("CancelOrder: %+v (%v)", cancelled, err)
	}

	if err := b.UpdateStatus(ctx); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	trades, err := b.ListTrades(ctx)
	if err != nil || len(trades) != 1 {
		t.Fatalf("ListTrades: %v (%v)", trades, err)
	}

	positions, err := b.ListPositions(ctx, entity.SecurityTypeFuture)
	if err != nil || len(positions) != 1 || positions[0].Quantity != 2 {
		t.Fatalf("ListPositions: %v (%v)", positions, err)
	}

	if _, err := b.PlaceOrder(ctx, *contract, entity.OrderRequest{Quantity: 0}); !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("expected invalid order error, got %v", err)
	}
}

func TestGatewayBrokerRejectsBadCredentials(t *testing.T) {
	g := newFakeGateway(t)
	b, err := NewGatewayBroker(config.BrokerConfig{BaseURL: g.server.URL, APIKey: "key", SecretKey: "wrong"}, true)
	if err != nil {
		t.Fatalf("NewGatewayBroker: %v", err)
	}

	err = b.Login(context.Background())
	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.StatusCode != http.StatusUnauthorized || gwErr.Message != "bad signature" {
		t.Fatalf("expected signature rejection, got %v", err)
	}
}

func TestGatewayBrokerActivateCARequiresFile(t *testing.T) {
	g := newFakeGateway(t)
	b := newTestGatewayBroker(t, g)

	err := b.ActivateCA(context.Background(), filepath.Join(t.TempDir(), "missing.pfx"), "pw")
	if !errors.Is(err, ErrCANotFound) {
		t.Fatalf("expected ca not found, got %v", err)
	}

	caPath := filepath.Join(t.TempDir(), "Sinopac.pfx")
	if err := os.WriteFile(caPath, []byte("pfx"), 0o600); err != nil {
		t.Fatalf("write ca: %v", err)
	}
	if err := b.ActivateCA(context.Background(), caPath, "pw"); err == nil {
		t.Fatal("expected error from a gateway without the ca endpoint")
	}
}

func TestGatewayBrokerStreamDeliversTicksAndDeals(t *testing.T) {
	ctx := context.Background()
	g := newFakeGateway(t)
	b := newTestGatewayBroker(t, g)

	ticks := make(chan entity.Tick, 1)
	deals := make(chan entity.Deal, 1)
	b.SetTickHandler(func(tick entity.Tick) { ticks <- tick })
	b.SetDealHandler(func(deal entity.Deal) { deals <- deal })

	contract := entity.Contract{Code: "TXFR1", SecurityType: entity.SecurityTypeFuture}
	if err := b.Subscribe(ctx, contract); err != nil {
		t.Fatalf("Subscribe before login: %v", err)
	}

	if err := b.Login(ctx); err != nil {
		t.Fatalf("Login: %v", err)
	}
	defer b.Logout(ctx)

	var conn *websocket.Conn
	select {
	case conn = <-g.streamCh:
	case <-time.After(3 * time.Second):
		t.Fatal("stream never connected")
	}

	waitFor(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return len(g.commands) == 1 && g.commands[0].Action == "subscribe" && g.commands[0].Code == "TXFR1"
	})

	tickData, _ := json.Marshal(entity.Tick{Code: "TXFR1", Close: decimal.NewFromInt(20001), Volume: 3})
	if err := conn.WriteJSON(entity.GatewayStreamMessage{Event: "tick", Data: tickData}); err != nil {
		t.Fatalf("write tick: %v", err)
	}
	dealData, _ := json.Marshal(entity.Deal{OrderID: "o1", Code: "TXFR1", Price: decimal.NewFromInt(20001), Quantity: 1})
	if err := conn.WriteJSON(entity.GatewayStreamMessage{Event: "deal", Data: dealData}); err != nil {
		t.Fatalf("write deal: %v", err)
	}

	select {
	case tick := <-ticks:
		if !tick.Close.Equal(decimal.NewFromInt(20001)) || tick.Volume != 3 {
			t.Fatalf("unexpected tick: %+v", tick)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("tick not delivered")
	}

	select {
	case deal := <-deals:
		if deal.OrderID != "o1" {
			t.Fatalf("unexpected deal: %+v", deal)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("deal not delivered")
	}

	if err := b.Unsubscribe(ctx, contract); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	waitFor(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return len(g.commands) == 2 && g.commands[1].Action == "unsubscribe"
	})
}

func TestGatewayReconnectDelayBounds(t *testing.T) {
	b, _ := NewGatewayBroker(config.BrokerConfig{BaseURL: "http://localhost"}, true)
	for attempt := 0; attempt < 8; attempt++ {
		d := b.reconnect.Delay(attempt)
		if d < gatewayWSReconnectMinDelay || d > gatewayWSReconnectMaxDelay {
			t.Fatalf("attempt %d: delay %s out of bounds", attempt, d)
		}
	}

	for i := 0; i < 50; i++ {
		if d := b.reconnect.Delay(0); d > 1200*time.Millisecond {
			t.Fatalf("first retry should stay close to the minimum delay, got %s", d)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
