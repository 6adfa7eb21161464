package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/shopspring/decimal"
)

type stubTrades struct {
	trades []entity.Trade
	err    error
	calls  int
}

func (s *stubTrades) ListTrades(ctx context.Context) ([]entity.Trade, error) {
	s.calls++
	return s.trades, s.err
}

type stubPendingJournal struct {
	rows    []entity.OrderHistory
	updates []*entity.OrderHistory
	failOn  string
	loadErr error
}

func (j *stubPendingJournal) GetByStatus(ctx context.Context, statuses []entity.OrderStatus) ([]entity.OrderHistory, error) {
	if j.loadErr != nil {
		return nil, j.loadErr
	}
	wanted := make(map[entity.OrderStatus]bool, len(statuses))
	for _, status := range statuses {
		wanted[status] = true
	}

	rows := make([]entity.OrderHistory, 0)
	for _, row := range j.rows {
		if wanted[row.Status] {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (j *stubPendingJournal) UpdateStatus(ctx context.Context, orderHistory *entity.OrderHistory) error {
	if orderHistory.OrderID == j.failOn {
		return errors.New("write failed")
	}
	j.updates = append(j.updates, orderHistory)
	return nil
}

func TestJournalSyncUpdatesChangedRows(t *testing.T) {
	journal := &stubPendingJournal{rows: []entity.OrderHistory{
		{OrderID: "a1", Status: entity.OrderStatusSubmitted, Price: decimal.NewFromInt(100)},
		{OrderID: "b2", Status: entity.OrderStatusSubmitted, Price: decimal.NewFromInt(200)},
		{OrderID: "c3", Status: entity.OrderStatusPartFilled, Price: decimal.NewFromInt(300)},
		{OrderID: "d4", Status: entity.OrderStatusFilled, Price: decimal.NewFromInt(400)},
		{OrderID: "e5", Status: entity.OrderStatusSubmitted, Price: decimal.NewFromInt(500)},
	}}
	trades := &stubTrades{trades: []entity.Trade{
		{Order: entity.Order{ID: "a1", Price: decimal.NewFromInt(100)}, Status: entity.TradeStatus{Status: entity.OrderStatusFilled}},
		{Order: entity.Order{ID: "b2", Price: decimal.NewFromInt(200)}, Status: entity.TradeStatus{Status: entity.OrderStatusSubmitted}},
		{Order: entity.Order{ID: "c3", Price: decimal.NewFromInt(300)}, Status: entity.TradeStatus{Status: entity.OrderStatusPartFilled, ModifiedPrice: decimal.NewFromInt(310)}},
		{Order: entity.Order{ID: "d4", Price: decimal.NewFromInt(400)}, Status: entity.TradeStatus{Status: entity.OrderStatusFilled}},
	}}

	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sync := NewJournalSync(trades, journal, 0)
	sync.now = func() time.Time { return fixed }

	synced, err := sync.SyncPending(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if synced != 2 {
		t.Fatalf("expected 2 synced rows, got %d", synced)
	}
	if sync.syncInterval != defaultJournalSyncInterval {
		t.Fatalf("expected default interval, got %s", sync.syncInterval)
	}

	got := map[string]*entity.OrderHistory{}
	for _, update := range journal.updates {
		got[update.OrderID] = update
	}
	if got["a1"] == nil || got["a1"].Status != entity.OrderStatusFilled {
		t.Fatalf("expected a1 to be filled, got %+v", got["a1"])
	}
	if got["c3"] == nil || !got["c3"].Price.Equal(decimal.NewFromInt(310)) {
		t.Fatalf("expected c3 to carry the modified price, got %+v", got["c3"])
	}
	if !got["a1"].UpdatedAt.Equal(fixed) {
		t.Fatalf("unexpected updated_at %s", got["a1"].UpdatedAt)
	}
}

func TestJournalSyncSkipsBrokerWhenNothingPending(t *testing.T) {
	journal := &stubPendingJournal{rows: []entity.OrderHistory{
		{OrderID: "a1", Status: entity.OrderStatusCancelled},
	}}
	trades := &stubTrades{}

	synced, err := NewJournalSync(trades, journal, time.Second).SyncPending(context.Background())
	if err != nil || synced != 0 {
		t.Fatalf("expected nothing synced, got %d (%v)", synced, err)
	}
	if trades.calls != 0 {
		t.Fatalf("expected broker not to be queried, got %d calls", trades.calls)
	}
}

func TestJournalSyncContinuesAfterErrors(t *testing.T) {
	journal := &stubPendingJournal{
		rows: []entity.OrderHistory{
			{OrderID: "a1", Status: entity.OrderStatusSubmitted},
			{OrderID: "b2", Status: entity.OrderStatusSubmitted},
		},
		failOn: "a1",
	}
	trades := &stubTrades{trades: []entity.Trade{
		{Order: entity.Order{ID: "a1"}, Status: entity.TradeStatus{Status: entity.OrderStatusCancelled}},
		{Order: entity.Order{ID: "b2"}, Status: entity.TradeStatus{Status: entity.OrderStatusCancelled}},
	}}

	synced, err := NewJournalSync(trades, journal, time.Second).SyncPending(context.Background())
	if synced != 1 {
		t.Fatalf("expected 1 synced row, got %d", synced)
	}
	if err == nil {
		t.Fatal("expected the failed row update to be reported")
	}

	brokerErr := errors.New("broker down")
	trades.err = brokerErr
	synced, err = NewJournalSync(trades, journal, time.Second).SyncPending(context.Background())
	if synced != 0 {
		t.Fatalf("expected broker error to sync nothing, got %d", synced)
	}
	if !errors.Is(err, brokerErr) {
		t.Fatalf("expected broker error, got %v", err)
	}
}

func TestJournalSyncReportsJournalLoadFailure(t *testing.T) {
	loadErr := errors.New("database is locked")
	journal := &stubPendingJournal{loadErr: loadErr}
	trades := &stubTrades{}

	synced, err := NewJournalSync(trades, journal, time.Second).SyncPending(context.Background())
	if !errors.Is(err, loadErr) {
		t.Fatalf("expected journal error, got %v", err)
	}
	if synced != 0 || trades.calls != 0 {
		t.Fatalf("expected no work after journal failure, synced=%d calls=%d", synced, trades.calls)
	}
}

func TestJournalSyncRunStopsOnCancel(t *testing.T) {
	journal := &stubPendingJournal{rows: []entity.OrderHistory{{OrderID: "a1", Status: entity.OrderStatusSubmitted}}}
	trades := &stubTrades{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewJournalSync(trades, journal, time.Hour).Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}
