package broker

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/krobus00/sj-trading/internal/infrastructure"
	"github.com/sirupsen/logrus"
)

const (
	gatewayWSReconnectMinDelay = 1 * time.Second
	gatewayWSReconnectMaxDelay = 15 * time.Second
	gatewayWSReconnectFactor   = 2.0
	gatewayWSReconnectJitter   = 0.2
	gatewayWSPingInterval      = 2 * time.Minute
)

var gatewayBackoffDefaults = infrastructure.BackoffDefaults{
	Factor:      gatewayWSReconnectFactor,
	MinJitter:   gatewayWSReconnectMinDelay,
	MaxJitter:   gatewayWSReconnectMaxDelay,
	JitterRatio: gatewayWSReconnectJitter,
}

// runStream keeps the quote and deal stream connected until ctx is cancelled.
func (b *GatewayBroker) runStream(ctx context.Context) {
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := b.dialStream(ctx)
		if err != nil {
			wait := b.reconnect.Delay(attempt)
			attempt++
			logrus.WithFields(logrus.Fields{"retry_in": wait.String(), "attempt": attempt}).Warnf("gateway ws dial failed: %v", err)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return
			}
		}

		if err := b.attachStream(conn); err != nil {
			_ = conn.Close()
			wait := b.reconnect.Delay(attempt)
			attempt++
			logrus.WithFields(logrus.Fields{"retry_in": wait.String(), "attempt": attempt}).Warnf("gateway ws subscribe failed: %v", err)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return
			}
		}

		attempt = 0
		stopPing := make(chan struct{})
		go b.pingStream(ctx, conn, stopPing)

		ctxDone := make(chan struct{})
		go func(c *websocket.Conn) {
			select {
			case <-ctx.Done():
				b.streamMu.Lock()
				_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				b.streamMu.Unlock()
				_ = c.Close()
			case <-ctxDone:
			}
		}(conn)

		readErr := false
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					break
				}

				readErr = true
				logrus.Errorf("gateway ws read failed: %v", err)
				break
			}

			if err := b.handleStreamMessage(message); err != nil {
				logrus.Errorf("gateway ws handle message failed: %v", err)
			}
		}

		close(stopPing)
		close(ctxDone)
		b.detachStream(conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		if !readErr {
			continue
		}

		wait := b.reconnect.Delay(attempt)
		attempt++
		logrus.WithFields(logrus.Fields{"retry_in": wait.String(), "attempt": attempt}).Warn("reconnecting gateway ws")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

func (b *GatewayBroker) dialStream(ctx context.Context) (*websocket.Conn, error) {
	wsHost, err := url.Parse(b.wsURL)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set(gatewayHeaderAPIKey, b.apiKey)
	if token := b.currentToken(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	logrus.Infof("connecting to %s", wsHost.String())
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsHost.String(), header)
	if err != nil {
		return nil, err
	}

	conn.SetPongHandler(func(string) error {
		return nil
	})

	return conn, nil
}

// attachStream publishes the connection and replays every active subscription on it.
func (b *GatewayBroker) attachStream(conn *websocket.Conn) error {
	b.streamMu.Lock()
	defer b.streamMu.Unlock()

	for _, command := range b.subscriptions {
		logrus.Infof("start subscription for code: %s, security type: %s", command.Code, command.SecurityType)
		if err := conn.WriteJSON(command); err != nil {
			return err
		}
	}

	b.conn = conn
	return nil
}

func (b *GatewayBroker) detachStream(conn *websocket.Conn) {
	b.streamMu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	b.streamMu.Unlock()
}

func (b *GatewayBroker) pingStream(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(gatewayWSPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.streamMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			b.streamMu.Unlock()
			if err != nil {
				logrus.Error(err)
				return
			}
		case <-ctx.Done():
			return
		case <-stop:
			return
		}
	}
}

func (b *GatewayBroker) handleStreamMessage(message []byte) error {
	var payload entity.GatewayStreamMessage
	if err := json.Unmarshal(message, &payload); err != nil {
		return err
	}

	b.handlerMu.RLock()
	tickHandler := b.tickHandler
	dealHandler := b.dealHandler
	b.handlerMu.RUnlock()

	switch payload.Event {
	case "tick":
		var tick entity.Tick
		if err := json.Unmarshal(payload.Data, &tick); err != nil {
			return err
		}
		if tickHandler != nil {
			tickHandler(tick)
		}
	case "deal":
		var deal entity.Deal
		if err := json.Unmarshal(payload.Data, &deal); err != nil {
			return err
		}
		if dealHandler != nil {
			dealHandler(deal)
		}
	case "error":
		logrus.WithField("data", string(payload.Data)).Warn("gateway stream error event")
	default:
		logrus.WithField("event", payload.Event).Debug("gateway stream event ignored")
	}

	return nil
}
