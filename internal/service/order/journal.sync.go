package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guregu/null/v6"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/sirupsen/logrus"
)

const defaultJournalSyncInterval = 30 * time.Second

var pendingJournalStatuses = []entity.OrderStatus{
	entity.OrderStatusPendingSubmit,
	entity.OrderStatusPreSubmitted,
	entity.OrderStatusSubmitted,
	entity.OrderStatusPartFilled,
}

type PendingJournal interface {
	GetByStatus(ctx context.Context, statuses []entity.OrderStatus) ([]entity.OrderHistory, error)
	UpdateStatus(ctx context.Context, orderHistory *entity.OrderHistory) error
}

type TradeLister interface {
	ListTrades(ctx context.Context) ([]entity.Trade, error)
}

// JournalSync copies the latest broker status onto journal rows that are still pending.
type JournalSync struct {
	trades       TradeLister
	journal      PendingJournal
	syncInterval time.Duration
	now          func() time.Time
}

func NewJournalSync(trades TradeLister, journal PendingJournal, syncInterval time.Duration) *JournalSync {
	if syncInterval <= 0 {
		syncInterval = defaultJournalSyncInterval
	}

	return &JournalSync{
		trades:       trades,
		journal:      journal,
		syncInterval: syncInterval,
		now:          time.Now,
	}
}

func (s *JournalSync) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	s.syncAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.syncAndLog(ctx)
		}
	}
}

func (s *JournalSync) syncAndLog(ctx context.Context) {
	if _, err := s.SyncPending(ctx); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Error("failed to sync order histories")
	}
}

// SyncPending returns the number of journal rows whose status changed.
// Rows that fail to update are skipped and reported in the joined error.
func (s *JournalSync) SyncPending(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	histories, err := s.journal.GetByStatus(ctx, pendingJournalStatuses)
	if err != nil {
		return 0, fmt.Errorf("load pending order histories: %w", err)
	}
	if len(histories) == 0 {
		return 0, nil
	}

	trades, err := s.trades.ListTrades(ctx)
	if err != nil {
		return 0, fmt.Errorf("list broker trades: %w", err)
	}

	byOrderID := make(map[string]entity.Trade, len(trades))
	for _, trade := range trades {
		byOrderID[trade.Order.ID] = trade
	}

	synced := 0
	var errs []error
	for _, history := range histories {
		if err := ctx.Err(); err != nil {
			return synced, errors.Join(append(errs, err)...)
		}

		trade, ok := byOrderID[history.OrderID]
		if !ok {
			logrus.WithField("order_id", history.OrderID).Debug("pending order not listed by broker")
			continue
		}
		if trade.Status.Status == history.Status && trade.DisplayPrice().Equal(history.Price) {
			continue
		}

		updated := &entity.OrderHistory{
			OrderID:      history.OrderID,
			Price:        trade.DisplayPrice(),
			Status:       trade.Status.Status,
			ErrorMessage: null.NewString(trade.Status.Message, trade.Status.Message != ""),
			UpdatedAt:    s.now().UTC(),
		}
		if err := s.journal.UpdateStatus(ctx, updated); err != nil {
			logrus.WithFields(logrus.Fields{
				"order_id": history.OrderID,
				"status":   trade.Status.Status,
			}).WithError(err).Error("failed to update order history")
			errs = append(errs, fmt.Errorf("update order %s: %w", history.OrderID, err))
			continue
		}

		logrus.WithFields(logrus.Fields{
			"order_id": history.OrderID,
			"from":     history.Status,
			"to":       trade.Status.Status,
		}).Info("order history synced")
		synced++
	}

	return synced, errors.Join(errs...)
}
