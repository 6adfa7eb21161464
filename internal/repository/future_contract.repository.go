package repository

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/krobus00/sj-trading/internal/entity"
)

var futureContractColumns = []string{
	"id",
	"symbol",
	"name",
	"underlying_code",
	"underlying_name",
	"unit_size",
	"category",
	"raw",
	"updated_at",
}

type FutureContractRepository struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

func NewFutureContractRepository(db *sqlx.DB) *FutureContractRepository {
	return &FutureContractRepository{db: db, sb: statementBuilder(db)}
}

// ReplaceAll swaps the cached futures list in one transaction.
func (r *FutureContractRepository) ReplaceAll(ctx context.Context, contracts []entity.FutureContractInfo) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	deleteQuery, deleteArgs, err := r.sb.Delete(entity.FutureContractInfo{}.TableName()).ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
		return err
	}

	for start := 0; start < len(contracts); start += insertChunkSize {
		end := min(start+insertChunkSize, len(contracts))

		queryBuilder := r.sb.
			Insert(entity.FutureContractInfo{}.TableName()).
			Columns(futureContractColumns...)
		for _, c := range contracts[start:end] {
			queryBuilder = queryBuilder.Values(
				c.ID,
				c.Symbol,
				c.Name,
				c.UnderlyingCode,
				c.UnderlyingName,
				c.UnitSize,
				c.Category,
				c.Raw,
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

func (r *FutureContractRepository) Count(ctx context.Context) (int64, error) {
	query, args, err := r.sb.Select("COUNT(*)").From(entity.FutureContractInfo{}.TableName()).ToSql()
	if err != nil {
		return 0, err
	}

	var count int64
	err = r.db.GetContext(ctx, &count, query, args...)
	return count, err
}

// Search matches the query case-insensitively against symbol, name and underlying columns.
func (r *FutureContractRepository) Search(ctx context.Context, query string, limit uint64) ([]entity.FutureContractInfo, error) {
	pattern := likePattern(strings.ToUpper(strings.TrimSpace(query)))

	queryBuilder := r.sb.
		Select(futureContractColumns...).
		From(entity.FutureContractInfo{}.TableName()).
		Where(sq.Or{
			sq.Expr("UPPER(symbol) LIKE ? ESCAPE '\\'", pattern),
			sq.Expr("UPPER(name) LIKE ? ESCAPE '\\'", pattern),
			sq.Expr("UPPER(COALESCE(underlying_code, '')) LIKE ? ESCAPE '\\'", pattern),
			sq.Expr("UPPER(COALESCE(underlying_name, '')) LIKE ? ESCAPE '\\'", pattern),
		}).
		OrderBy("symbol asc")
	if limit > 0 {
		queryBuilder = queryBuilder.Limit(limit)
	}

	sqlQuery, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, err
	}

	contracts := make([]entity.FutureContractInfo, 0)
	err = r.db.SelectContext(ctx, &contracts, sqlQuery, args...)
	if err != nil {
		return nil, err
	}

	return contracts, nil
}
