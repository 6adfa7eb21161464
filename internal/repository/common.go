package repository

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

const insertChunkSize = 200

var sqLikeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// statementBuilder picks the placeholder format of the connected driver.
func statementBuilder(db *sqlx.DB) sq.StatementBuilderType {
	if db.DriverName() == "postgres" {
		return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return sq.StatementBuilder.PlaceholderFormat(sq.Question)
}

func likePattern(query string) string {
	escaped := sqLikeEscaper.Replace(query)
	return "%" + escaped + "%"
}
