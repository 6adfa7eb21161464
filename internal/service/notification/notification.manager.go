package notification

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/krobus00/sj-trading/internal/constant"
	"github.com/sirupsen/logrus"
)

const separator = "------------------------------"

type MessageSender interface {
	SendMarkdown(ctx context.Context, text string) error
}

// Manager prints notifications to the console and forwards them to Telegram when a sender is set.
type Manager struct {
	mu     sync.Mutex
	out    io.Writer
	sender MessageSender
	now    func() time.Time
}

func NewManager(sender MessageSender) *Manager {
	return &Manager{
		out:    os.Stdout,
		sender: sender,
		now:    time.Now,
	}
}

func (m *Manager) SetOutput(out io.Writer) {
	m.mu.Lock()
	m.out = out
	m.mu.Unlock()
}

func (m *Manager) Notify(ctx context.Context, title, message string) {
	logrus.WithField("title", title).Info(strings.ReplaceAll(message, "\n", " | "))

	block := fmt.Sprintf("[%s] 🔔 %s\n%s\n%s\n", m.now().Format(constant.DateTimeLayout), title, message, separator)
	m.mu.Lock()
	_, _ = io.WriteString(m.out, block)
	sender := m.sender
	m.mu.Unlock()

	if sender == nil {
		return
	}

	if err := sender.SendMarkdown(ctx, fmt.Sprintf("🔔 *%s*\n\n%s", title, message)); err != nil {
		logrus.WithField("title", title).Errorf("failed to send telegram notification: %v", err)
	}
}
