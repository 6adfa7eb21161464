package telegram

import (
	"context"
	"errors"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/krobus00/sj-trading/internal/config"
	"github.com/sirupsen/logrus"
)

const defaultHTTPTimeout = 15 * time.Second

var ErrNotConfigured = errors.New("TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID missing in .env")

// API is the subset of the bot API used here.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

func NewAPI(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	return NewAPIWithEndpoint(cfg, tgbotapi.APIEndpoint)
}

// NewAPIWithEndpoint connects to a bot API endpoint of the form "https://host/bot%s/%s".
func NewAPIWithEndpoint(cfg config.TelegramConfig, endpoint string) (*tgbotapi.BotAPI, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, err
	}

	logrus.WithField("username", bot.Self.UserName).Info("telegram bot authorized")
	return bot, nil
}

// Client sends messages to the single authorized chat.
type Client struct {
	api    API
	chatID int64
}

func NewClient(api API, chatID int64) *Client {
	return &Client{api: api, chatID: chatID}
}

func (c *Client) ChatID() int64 {
	return c.chatID
}

// SendMarkdown sends text with Markdown parse mode and retries as plain text when Telegram rejects the markup.
func (c *Client) SendMarkdown(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := c.api.Send(msg)
	if err == nil {
		return nil
	}

	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusBadRequest {
		return err
	}

	logrus.Debugf("telegram rejected markdown, resending as plain text: %v", err)
	return c.SendText(ctx, text)
}

func (c *Client) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := c.api.Send(tgbotapi.NewMessage(c.chatID, text))
	return err
}
