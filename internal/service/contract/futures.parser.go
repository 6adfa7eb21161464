package contract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/guregu/null/v6"
	"github.com/knieriem/odf/ods"
	"github.com/krobus00/sj-trading/internal/entity"
)

const (
	futuresHeaderRow = 1

	columnUnitSize       = "標準型證券股數/受益權單位"
	columnCategory       = "類型"
	columnFuturesSymbol  = "股票期貨英文代碼"
	columnFuturesName    = "股票期貨中文簡稱"
	columnUnderlyingCode = "證券代號"
	columnUnderlyingName = "證券名稱"
)

var ErrNoSheet = errors.New("spreadsheet has no table")

// ParseFutures reads the stock futures list from an ODS document. The first row is a title and the
// second row holds the column names.
func ParseFutures(r io.ReaderAt, size int64, now time.Time) ([]entity.FutureContractInfo, error) {
	rows, err := readFirstSheet(r, size)
	if err != nil {
		return nil, err
	}
	if len(rows) <= futuresHeaderRow {
		return nil, fmt.Errorf("futures sheet has no header row")
	}

	columns := dedupColumns(rows[futuresHeaderRow])
	index := make(map[string]int, len(columns))
	for i, column := range columns {
		index[column] = i
	}

	symbolCol := findColumn(columns, columnFuturesSymbol, "英文代碼")
	nameCol := findColumn(columns, columnFuturesName, "中文簡稱")
	codeCol := findColumn(columns, columnUnderlyingCode, "代號")
	underlyingNameCol := findColumn(columns, columnUnderlyingName, "證券名稱", "證券簡稱")
	unitCol, hasUnit := index[columnUnitSize]

	contracts := make([]entity.FutureContractInfo, 0, len(rows)-futuresHeaderRow-1)
	for _, row := range rows[futuresHeaderRow+1:] {
		symbol := cell(row, symbolCol)
		if symbol == "" {
			continue
		}

		raw := make(map[string]string, len(columns)+1)
		for i, column := range columns {
			raw[column] = cell(row, i)
		}

		info := entity.FutureContractInfo{
			ID:             uuid.NewString(),
			Symbol:         symbol,
			Name:           cell(row, nameCol),
			UnderlyingCode: optionalCell(row, codeCol),
			UnderlyingName: optionalCell(row, underlyingNameCol),
			Category:       entity.FutureCategoryUnknown,
			UpdatedAt:      now,
		}
		if hasUnit {
			unit := cell(row, unitCol)
			info.UnitSize = null.NewString(unit, unit != "")
			info.Category = FutureCategory(unit)
			raw[columnCategory] = info.Category
		}

		encoded, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		info.Raw = string(encoded)

		contracts = append(contracts, info)
	}

	return contracts, nil
}

func readFirstSheet(r io.ReaderAt, size int64) ([][]string, error) {
	file, err := ods.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open ods: %w", err)
	}
	defer file.Close()

	var doc ods.Doc
	if err := file.ParseContent(&doc); err != nil {
		return nil, fmt.Errorf("parse ods content: %w", err)
	}
	if len(doc.Table) == 0 {
		return nil, ErrNoSheet
	}

	return doc.Table[0].Strings(), nil
}

func ParseFuturesBytes(data []byte, now time.Time) ([]entity.FutureContractInfo, error) {
	return ParseFutures(bytes.NewReader(data), int64(len(data)), now)
}

// FutureCategory classifies a contract by its underlying unit size.
func FutureCategory(unitSize string) string {
	value, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(unitSize), ",", ""), 64)
	if err != nil {
		return entity.FutureCategoryUnknown
	}

	switch value {
	case 2000:
		return entity.FutureCategoryStock
	case 100:
		return entity.FutureCategoryMicro
	case 10:
		return entity.FutureCategorySmall
	default:
		return entity.FutureCategoryOther
	}
}

// dedupColumns trims the header names and suffixes repeated names with their occurrence, so the
// second "A" becomes "A.1".
func dedupColumns(header []string) []string {
	columns := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n := seen[name]; n > 0 {
			columns[i] = fmt.Sprintf("%s.%d", name, n)
		} else {
			columns[i] = name
		}
		seen[name]++
	}
	return columns
}

// findColumn returns the index of the exact column name, or of the first column containing one of
// the fallback fragments. It returns -1 when nothing matches.
func findColumn(columns []string, exact string, fragments ...string) int {
	for i, column := range columns {
		if column == exact {
			return i
		}
	}
	for _, fragment := range fragments {
		for i, column := range columns {
			if strings.Contains(column, fragment) {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func optionalCell(row []string, i int) null.String {
	value := cell(row, i)
	return null.NewString(value, value != "")
}
