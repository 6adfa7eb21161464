package notification

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSender struct {
	texts []string
	err   error
}

func (f *fakeSender) SendMarkdown(ctx context.Context, text string) error {
	f.texts = append(f.texts, text)
	return f.err
}

func TestNotifyWritesConsoleBlockAndTelegram(t *testing.T) {
	sender := &fakeSender{}
	m := NewManager(sender)
	m.now = func() time.Time { return time.Date(2026, 3, 2, 9, 15, 0, 0, time.Local) }

	var out bytes.Buffer
	m.SetOutput(&out)
	m.Notify(context.Background(), "TP Order Placed", "Order ID: abc\nPrice: 110")

	want := "[2026-03-02 09:15:00] 🔔 TP Order Placed\nOrder ID: abc\nPrice: 110\n------------------------------\n"
	if out.String() != want {
		t.Fatalf("console block = %q, want %q", out.String(), want)
	}
	if len(sender.texts) != 1 || sender.texts[0] != "🔔 *TP Order Placed*\n\nOrder ID: abc\nPrice: 110" {
		t.Fatalf("unexpected telegram text: %v", sender.texts)
	}
}

func TestNotifySwallowsSendErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("telegram down")}
	m := NewManager(sender)
	var out bytes.Buffer
	m.SetOutput(&out)

	m.Notify(context.Background(), "title", "message")
	if out.Len() == 0 || len(sender.texts) != 1 {
		t.Fatal("expected console output and a send attempt")
	}
}

func TestNotifyWithoutSender(t *testing.T) {
	m := NewManager(nil)
	var out bytes.Buffer
	m.SetOutput(&out)

	m.Notify(context.Background(), "title", "message")
	if out.Len() == 0 {
		t.Fatal("expected console output")
	}
}
