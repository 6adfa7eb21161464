package broker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/krobus00/sj-trading/internal/config"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/krobus00/sj-trading/internal/infrastructure"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	gatewayHeaderAPIKey    = "X-SJ-APIKEY"
	gatewayHeaderTimestamp = "X-SJ-TIMESTAMP"
	gatewayHeaderSignature = "X-SJ-SIGNATURE"

	defaultGatewayTimeout = 15 * time.Second
)

// GatewayError is a non-success reply from the trading gateway.
type GatewayError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway request rejected: status=%d code=%d message=%s", e.StatusCode, e.Code, e.Message)
}

// GatewayBroker talks to the broker trading gateway over signed REST calls and
// receives ticks and deals over a websocket stream.
type GatewayBroker struct {
	apiKey     string
	secretKey  string
	baseURL    string
	wsURL      string
	simulation bool
	httpClient *http.Client

	tokenMu sync.RWMutex
	token   string

	handlerMu   sync.RWMutex
	tickHandler func(entity.Tick)
	dealHandler func(entity.Deal)

	streamMu      sync.Mutex
	conn          *websocket.Conn
	subscriptions map[string]entity.GatewayStreamCommand
	streamCancel  context.CancelFunc
	streamDone    chan struct{}
	reconnect     *infrastructure.BackoffPolicy
}

func NewGatewayBroker(cfg config.BrokerConfig, simulation bool) (*GatewayBroker, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("broker base_url is required")
	}

	parsedBase, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker base_url: %w", err)
	}

	wsURL := strings.TrimSpace(cfg.WSURL)
	if wsURL == "" {
		wsURL = defaultStreamURL(*parsedBase)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}

	return &GatewayBroker{
		apiKey:        strings.TrimSpace(cfg.APIKey),
		secretKey:     strings.TrimSpace(cfg.SecretKey),
		baseURL:       baseURL,
		wsURL:         wsURL,
		simulation:    simulation,
		httpClient:    &http.Client{Timeout: timeout},
		subscriptions: make(map[string]entity.GatewayStreamCommand),
		reconnect:     infrastructure.NewBackoffPolicy(0, 0, 0, gatewayBackoffDefaults),
	}, nil
}

func defaultStreamURL(base url.URL) string {
	switch base.Scheme {
	case "https":
		base.Scheme = "wss"
	default:
		base.Scheme = "ws"
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/v1/stream"
	return base.String()
}

func (b *GatewayBroker) Login(ctx context.Context) error {
	if b.apiKey == "" || b.secretKey == "" {
		return config.ErrMissingAPICredentials
	}

	var resp entity.GatewayLoginResponse
	err := b.do(ctx, http.MethodPost, "/v1/login", nil, entity.GatewayLoginRequest{Simulation: b.simulation}, &resp)
	if err != nil {
		return err
	}
	if strings.TrimSpace(resp.Token) == "" {
		return errors.New("gateway login returned an empty token")
	}

	b.tokenMu.Lock()
	b.token = resp.Token
	b.tokenMu.Unlock()

	for _, account := range resp.Accounts {
		logrus.WithFields(logrus.Fields{
			"account_type": account.AccountType,
			"account_id":   account.AccountID,
			"signed":       account.Signed,
		}).Debug("broker account available")
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	b.streamMu.Lock()
	b.streamCancel = cancel
	b.streamDone = done
	b.streamMu.Unlock()

	go func() {
		defer close(done)
		b.runStream(streamCtx)
	}()

	return nil
}

func (b *GatewayBroker) ActivateCA(ctx context.Context, caPath, caPassword string) error {
	if _, err := os.Stat(caPath); err != nil {
		return fmt.Errorf("%w: %s", ErrCANotFound, caPath)
	}

	return b.do(ctx, http.MethodPost, "/v1/ca/activate", nil, entity.GatewayActivateCARequest{
		CAPath:     caPath,
		CAPassword: caPassword,
	}, nil)
}

func (b *GatewayBroker) Logout(ctx context.Context) error {
	b.streamMu.Lock()
	cancel := b.streamCancel
	done := b.streamDone
	b.streamCancel = nil
	b.streamDone = nil
	b.streamMu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	if !b.loggedIn() {
		return nil
	}

	err := b.do(ctx, http.MethodPost, "/v1/logout", nil, nil, nil)

	b.tokenMu.Lock()
	b.token = ""
	b.tokenMu.Unlock()

	return err
}

func (b *GatewayBroker) Version(ctx context.Context) (string, error) {
	var resp entity.GatewayVersionResponse
	if err := b.do(ctx, http.MethodGet, "/v1/version", nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.Version, nil
}

func (b *GatewayBroker) Contract(ctx context.Context, securityType entity.SecurityType, code string) (*entity.Contract, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}

	var contract entity.Contract
	path := fmt.Sprintf("/v1/contracts/%s/%s", url.PathEscape(string(securityType)), url.PathEscape(code))
	err := b.do(ctx, http.MethodGet, path, nil, nil, &contract)
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}

	if contract.SecurityType == "" {
		contract.SecurityType = securityType
	}
	if contract.Code == "" {
		contract.Code = code
	}

	return &contract, nil
}

func (b *GatewayBroker) Ticks(ctx context.Context, contract entity.Contract, date string) ([]entity.Tick, error) {
	query := url.Values{}
	query.Set("code", contract.Code)
	query.Set("security_type", string(contract.SecurityType))
	query.Set("date", date)

	var resp entity.GatewayTicks
	if err := b.do(ctx, http.MethodGet, "/v1/ticks", query, nil, &resp); err != nil {
		return nil, err
	}

	return gatewayTicksToEntity(contract, resp)
}

func gatewayTicksToEntity(contract entity.Contract, resp entity.GatewayTicks) ([]entity.Tick, error) {
	if len(resp.Close) != len(resp.TS) {
		return nil, fmt.Errorf("gateway ticks length mismatch: ts=%d close=%d", len(resp.TS), len(resp.Close))
	}

	ticks := make([]entity.Tick, 0, len(resp.TS))
	for idx, ts := range resp.TS {
		tick := entity.Tick{
			Code:         contract.Code,
			SecurityType: contract.SecurityType,
			Datetime:     time.Unix(0, ts),
			Close:        resp.Close[idx],
		}
		if idx < len(resp.Volume) {
			tick.Volume = resp.Volume[idx]
		}
		if idx < len(resp.TickType) {
			tick.TickType = entity.TickType(resp.TickType[idx])
		}
		ticks = append(ticks, tick)
	}

	return ticks, nil
}

func (b *GatewayBroker) Subscribe(ctx context.Context, contract entity.Contract) error {
	command := entity.GatewayStreamCommand{
		Action:       "subscribe",
		Code:         contract.Code,
		SecurityType: contract.SecurityType,
		QuoteType:    "tick",
	}

	b.streamMu.Lock()
	defer b.streamMu.Unlock()

	b.subscriptions[subscriptionKey(contract)] = command
	if b.conn == nil {
		// replayed once the stream connects
		return nil
	}

	return b.conn.WriteJSON(command)
}

func (b *GatewayBroker) Unsubscribe(ctx context.Context, contract entity.Contract) error {
	b.streamMu.Lock()
	defer b.streamMu.Unlock()

	delete(b.subscriptions, subscriptionKey(contract))
	if b.conn == nil {
		return nil
	}

	return b.conn.WriteJSON(entity.GatewayStreamCommand{
		Action:       "unsubscribe",
		Code:         contract.Code,
		SecurityType: contract.SecurityType,
		QuoteType:    "tick",
	})
}

func subscriptionKey(contract entity.Contract) string {
	return string(contract.SecurityType) + ":" + contract.Code
}

func (b *GatewayBroker) SetTickHandler(handler func(entity.Tick)) {
	b.handlerMu.Lock()
	b.tickHandler = handler
	b.handlerMu.Unlock()
}

func (b *GatewayBroker) SetDealHandler(handler func(entity.Deal)) {
	b.handlerMu.Lock()
	b.dealHandler = handler
	b.handlerMu.Unlock()
}

func (b *GatewayBroker) PlaceOrder(ctx context.Context, contract entity.Contract, order entity.OrderRequest) (*entity.Trade, error) {
	if order.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}

	var trade entity.Trade
	err := b.do(ctx, http.MethodPost, "/v1/orders", nil, entity.GatewayPlaceOrderRequest{
		Contract: contract,
		Order:    order,
	}, &trade)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"code":       contract.Code,
		"action":     order.Action,
		"price":      order.Price.String(),
		"quantity":   order.Quantity,
		"price_type": order.PriceType,
		"order_id":   trade.Order.ID,
		"status":     trade.Status.Status,
	}).Info("order placed")

	return &trade, nil
}

func (b *GatewayBroker) UpdateStatus(ctx context.Context) error {
	return b.do(ctx, http.MethodPost, "/v1/orders/status", nil, nil, nil)
}

func (b *GatewayBroker) ListTrades(ctx context.Context) ([]entity.Trade, error) {
	trades := make([]entity.Trade, 0)
	if err := b.do(ctx, http.MethodGet, "/v1/trades", nil, nil, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

func (b *GatewayBroker) UpdateOrder(ctx context.Context, trade entity.Trade, price decimal.Decimal) (*entity.Trade, error) {
	var updated entity.Trade
	path := "/v1/orders/" + url.PathEscape(trade.Order.ID)
	if err := b.do(ctx, http.MethodPut, path, nil, entity.GatewayUpdateOrderRequest{Price: price}, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (b *GatewayBroker) CancelOrder(ctx context.Context, trade entity.Trade) (*entity.Trade, error) {
	var cancelled entity.Trade
	path := "/v1/orders/" + url.PathEscape(trade.Order.ID)
	if err := b.do(ctx, http.MethodDelete, path, nil, nil, &cancelled); err != nil {
		return nil, err
	}
	return &cancelled, nil
}

func (b *GatewayBroker) ListPositions(ctx context.Context, securityType entity.SecurityType) ([]entity.Position, error) {
	query := url.Values{}
	query.Set("security_type", string(securityType))

	positions := make([]entity.Position, 0)
	if err := b.do(ctx, http.MethodGet, "/v1/positions", query, nil, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func (b *GatewayBroker) loggedIn() bool {
	b.tokenMu.RLock()
	defer b.tokenMu.RUnlock()
	return b.token != ""
}

func (b *GatewayBroker) currentToken() string {
	b.tokenMu.RLock()
	defer b.tokenMu.RUnlock()
	return b.token
}

// do sends a signed request and decodes the envelope data into out.
func (b *GatewayBroker) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = encoded
	}

	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature := hmacSHA256Hex(b.secretKey, timestamp+method+requestPath+string(payload))

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+requestPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set(gatewayHeaderAPIKey, b.apiKey)
	req.Header.Set(gatewayHeaderTimestamp, timestamp)
	req.Header.Set(gatewayHeaderSignature, signature)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := b.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var apiResp entity.GatewayResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &apiResp); err != nil {
			return fmt.Errorf("gateway response parse failed: status=%d body=%s", resp.StatusCode, string(raw))
		}
	}

	if resp.StatusCode >= http.StatusBadRequest || apiResp.Code != 0 || (apiResp.Success != nil && !*apiResp.Success) {
		errMsg := apiResp.Message
		if errMsg == "" {
			errMsg = apiResp.Msg
		}
		if errMsg == "" {
			errMsg = http.StatusText(resp.StatusCode)
		}

		return &GatewayError{StatusCode: resp.StatusCode, Code: apiResp.Code, Message: errMsg}
	}

	if out == nil || len(apiResp.Data) == 0 || string(apiResp.Data) == "null" {
		return nil
	}

	if err := json.Unmarshal(apiResp.Data, out); err != nil {
		return fmt.Errorf("gateway data parse failed: %w", err)
	}

	return nil
}

func hmacSHA256Hex(secret, payload string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return fmt.Sprintf("%x", h.Sum(nil))
}
