package repository

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/sj-trading/internal/entity"
)

var stockContractColumns = []string{
	"id",
	"full_name",
	"code",
	"name",
	"listed_date",
	"market",
	"industry",
	"cfi_code",
	"updated_at",
}

type StockContractRepository struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

func NewStockContractRepository(db *sqlx.DB) *StockContractRepository {
	return &StockContractRepository{db: db, sb: statementBuilder(db)}
}

func (r *StockContractRepository) ReplaceAll(ctx context.Context, contracts []entity.StockContractInfo) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	deleteQuery, deleteArgs, err := r.sb.Delete(entity.StockContractInfo{}.TableName()).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
		return err
	}

	for start := 0; start < len(contracts); start += insertChunkSize {
		end := min(start+insertChunkSize, len(contracts))

		queryBuilder := r.sb.
			Insert(entity.StockContractInfo{}.TableName()).
			Columns(stockContractColumns...)
		for _, c := range contracts[start:end] {
			queryBuilder = queryBuilder.Values(
				c.ID,
				c.FullName,
				c.Code,
				c.Name,
				c.ListedDate,
				c.Market,
				c.Industry,
				c.CFICode,
				c.UpdatedAt,
			)
		}

		query, args, err := queryBuilder.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *StockContractRepository) Count(ctx context.Context) (int64, error) {
	query, args, err := r.sb.Select("COUNT(*)").From(entity.StockContractInfo{}.TableName()).ToSql()
	if err != nil {
		return 0, err
	}

	var count int64
	err = r.db.GetContext(ctx, &count, query, args...)
	return count, err
}

func (r *StockContractRepository) FindAll(ctx context.Context) ([]entity.StockContractInfo, error) {
	query, args, err := r.sb.
		Select(stockContractColumns...).
		From(entity.StockContractInfo{}.TableName()).
		OrderBy("code asc").
		ToSql()
	if err != nil {
		return nil, err
	}

	contracts := make([]entity.StockContractInfo, 0)
	err = r.db.SelectContext(ctx, &contracts, query, args...)
	if err != nil {
		return nil, err
	}

	return contracts, nil
}

func (r *StockContractRepository) Search(ctx context.Context, query string, limit uint64) ([]entity.StockContractInfo, error) {
	pattern := likePattern(strings.ToUpper(strings.TrimSpace(query)))

	queryBuilder := r.sb.
		Select(stockContractColumns...).
		From(entity.StockContractInfo{}.TableName()).
		Where(sq.Or{
			sq.Expr("UPPER(code) LIKE ? ESCAPE '\\'", pattern),
			sq.Expr("UPPER(name) LIKE ? ESCAPE '\\'", pattern),
			sq.Expr("UPPER(full_name) LIKE ? ESCAPE '\\'", pattern),
		}).
		OrderBy("code asc")
	if limit > 0 {
		queryBuilder = queryBuilder.Limit(limit)
	}

	sqlQuery, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	contracts := make([]entity.StockContractInfo, 0)
	err = r.db.SelectContext(ctx, &contracts, sqlQuery, args...)
	if err != nil {
		return nil, err
	}

	return contracts, nil
}
