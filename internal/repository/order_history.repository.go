package repository

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/sj-trading/internal/entity"
)

var ErrOrderHistoryNotFound = errors.New("order history not found")

var orderHistoryColumns = []string{
	"id",
	"request_id",
	"order_id",
	"seqno",
	"code",
	"security_type",
	"action",
	"price_type",
	"order_type",
	"price",
	"quantity",
	"status",
	"simulation",
	"source",
	"error_message",
	"created_at",
	"updated_at",
}

type OrderHistoryRepository struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

func NewOrderHistoryRepository(db *sqlx.DB) *OrderHistoryRepository {
	return &OrderHistoryRepository{db: db, sb: statementBuilder(db)}
}

func (r *OrderHistoryRepository) Create(ctx context.Context, orderHistory *entity.OrderHistory) error {
	queryBuilder := r.sb.
		Insert(orderHistory.TableName()).
		Columns(orderHistoryColumns...).
		Values(
			orderHistory.ID,
			orderHistory.RequestID,
			orderHistory.OrderID,
			orderHistory.Seqno,
			orderHistory.Code,
			orderHistory.SecurityType,
			orderHistory.Action,
			orderHistory.PriceType,
			orderHistory.OrderType,
			orderHistory.Price,
			orderHistory.Quantity,
			orderHistory.Status,
			orderHistory.Simulation,
			orderHistory.Source,
			orderHistory.ErrorMessage,
			orderHistory.CreatedAt,
			orderHistory.UpdatedAt,
		)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *OrderHistoryRepository) GetByOrderID(ctx context.Context, orderID string) (*entity.OrderHistory, error) {
	query, args, err := r.sb.
		Select(orderHistoryColumns...).
		From(entity.OrderHistory{}.TableName()).
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("created_at desc").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	var orderHistory entity.OrderHistory
	err = r.db.GetContext(ctx, &orderHistory, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderHistoryNotFound
	}
	if err != nil {
		return nil, err
	}

	return &orderHistory, nil
}

func (r *OrderHistoryRepository) GetByStatus(ctx context.Context, statuses []entity.OrderStatus) ([]entity.OrderHistory, error) {
	if len(statuses) == 0 {
		return []entity.OrderHistory{}, nil
	}

	query, args, err := r.sb.
		Select(orderHistoryColumns...).
		From(entity.OrderHistory{}.TableName()).
		Where(sq.Eq{"status": statuses}).
		OrderBy("created_at desc").
		ToSql()
	if err != nil {
		return nil, err
	}

	orderHistories := make([]entity.OrderHistory, 0)
	err = r.db.SelectContext(ctx, &orderHistories, query, args...)
	if err != nil {
		return nil, err
	}

	return orderHistories, nil
}

// UpdateStatus records the latest broker status and price of the order.
func (r *OrderHistoryRepository) UpdateStatus(ctx context.Context, orderHistory *entity.OrderHistory) error {
	query, args, err := r.sb.
		Update(orderHistory.TableName()).
		Set("price", orderHistory.Price).
		Set("status", orderHistory.Status).
		Set("error_message", orderHistory.ErrorMessage).
		Set("updated_at", orderHistory.UpdatedAt).
		Where(sq.Eq{"order_id": orderHistory.OrderID}).
		ToSql()
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderHistoryNotFound
	}

	return nil
}
