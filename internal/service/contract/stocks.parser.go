package contract

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/krobus00/sj-trading/internal/entity"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/encoding/traditionalchinese"
)

const (
	columnFullName   = "有價證券代號及名稱"
	columnListedDate = "上市日"
	columnMarket     = "市場別"
	columnIndustry   = "產業別"
	columnCFICode    = "CFICode"
)

var (
	ErrNoTable = errors.New("no table found")

	keptCFIPrefixes = []string{"E", "C", "L"}
)

// ParseStocks reads the ISIN listing page. Rows shorter than the header, such as section titles,
// are skipped and only equities, funds and notes (CFI E, C and L) are kept.
func ParseStocks(r io.Reader, now time.Time) ([]entity.StockContractInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		data, err = traditionalchinese.Big5.NewDecoder().Bytes(data)
		if err != nil {
			return nil, err
		}
	}

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	rows := tableRows(findTable(doc))
	if len(rows) == 0 {
		return nil, ErrNoTable
	}

	columns := dedupColumns(rows[0])
	fullNameCol := findColumn(columns, columnFullName)
	if fullNameCol < 0 {
		return nil, ErrNoTable
	}
	listedCol := findColumn(columns, columnListedDate)
	marketCol := findColumn(columns, columnMarket)
	industryCol := findColumn(columns, columnIndustry)
	cfiCol := findColumn(columns, columnCFICode)

	stocks := make([]entity.StockContractInfo, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < len(columns) {
			continue
		}

		fullName := strings.ReplaceAll(cell(row, fullNameCol), "　", " ")
		if fullName == "" {
			continue
		}

		cfiCode := cell(row, cfiCol)
		if cfiCol >= 0 && !hasAnyPrefix(cfiCode, keptCFIPrefixes) {
			continue
		}

		code, name := splitCodeAndName(fullName)
		stocks = append(stocks, entity.StockContractInfo{
			ID:         uuid.NewString(),
			FullName:   fullName,
			Code:       code,
			Name:       name,
			ListedDate: optionalCell(row, listedCol),
			Market:     optionalCell(row, marketCol),
			Industry:   optionalCell(row, industryCol),
			CFICode:    optionalCell(row, cfiCol),
			UpdatedAt:  now,
		})
	}

	return stocks, nil
}

// splitCodeAndName splits "2330 台積電" on its first whitespace.
func splitCodeAndName(fullName string) (string, string) {
	fullName = strings.TrimSpace(fullName)
	idx := strings.IndexFunc(fullName, unicode.IsSpace)
	if idx < 0 {
		return fullName, ""
	}
	return fullName[:idx], strings.TrimSpace(fullName[idx:])
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

// findTable returns the first table whose header mentions the security name column, falling back
// to the first table of the document.
func findTable(doc *html.Node) *html.Node {
	var first, match *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			if first == nil {
				first = n
			}
			if rows := tableRows(n); len(rows) > 0 && findColumn(dedupColumns(rows[0]), columnFullName) >= 0 {
				match = n
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if match != nil {
		return match
	}
	return first
}

func tableRows(table *html.Node) [][]string {
	if table == nil {
		return nil
	}

	var rows [][]string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
				// nested tables belong to their own cell
			case atom.Tr:
				rows = append(rows, rowCells(c))
			default:
				walk(c)
			}
		}
	}
	walk(table)
	return rows
}

func rowCells(tr *html.Node) []string {
	cells := make([]string, 0)
	for c := tr.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
			cells = append(cells, strings.TrimSpace(nodeText(c)))
		}
	}
	return cells
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
