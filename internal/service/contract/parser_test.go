package contract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/krobus00/sj-trading/internal/entity"
	"golang.org/x/text/encoding/traditionalchinese"
)

var fixedNow = time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)

func odsCell(value string) string {
	if value == "" {
		return `<table:table-cell/>`
	}
	return fmt.Sprintf(`<table:table-cell office:value-type="string"><text:p>%s</text:p></table:table-cell>`, value)
}

func odsNumber(value, display string) string {
	return fmt.Sprintf(`<table:table-cell office:value-type="float" office:value="%s"><text:p>%s</text:p></table:table-cell>`, value, display)
}

func odsRow(cells ...string) string {
	return "<table:table-row>" + strings.Join(cells, "") + `<table:table-cell table:number-columns-repeated="1000"/></table:table-row>`
}

func buildODS(t *testing.T, rows ...string) []byte {
	t.Helper()

	content := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" ` +
		`xmlns:table="urn:oasis:names:tc:opendocument:xmlns:table:1.0" ` +
		`xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0">` +
		`<office:body><office:spreadsheet><table:table table:name="Sheet1">` +
		strings.Join(rows, "") +
		`<table:table-row table:number-rows-repeated="1048000"><table:table-cell table:number-columns-repeated="1024"/></table:table-row>` +
		`</table:table><table:table table:name="Sheet2">` + odsRow(odsCell("ignored")) + `</table:table>` +
		`</office:spreadsheet></office:body></office:document-content>`

	return zipFiles(t, map[string]string{
		"mimetype":    "application/vnd.oasis.opendocument.spreadsheet",
		"content.xml": content,
	})
}

func zipFiles(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func futuresFixture(t *testing.T) []byte {
	t.Helper()
	return buildODS(t,
		odsRow(odsCell("股票期貨、選擇權契約標的")),
		odsRow(odsCell("序號"), odsCell(" 證券代號 "), odsCell("證券名稱"), odsCell("股票期貨英文代碼"), odsCell("股票期貨中文簡稱"), odsCell("標準型證券股數/受益權單位"), odsCell("備註"), odsCell("備註")),
		odsRow(odsNumber("1", "1"), odsCell("2330"), odsCell("台積電"), odsCell("CDF"), odsCell("台積電期貨"), odsNumber("2000", "2,000"), odsCell(""), odsCell("x")),
		odsRow(odsNumber("2", "2"), odsCell("2330"), odsCell("台積電"), odsCell("QFF"), odsCell("小型台積電期貨"), odsNumber("100", "100")),
		odsRow(odsNumber("3", "3"), odsCell("0050"), `<table:table-cell office:value-type="string"><text:p>元大<text:s/>台灣50</text:p></table:table-cell>`, odsCell("NYF"), odsCell("元大台灣50期貨"), odsNumber("10", "10")),
		odsRow(odsNumber("4", "4"), odsCell("2317"), odsCell("鴻海"), odsCell("DHF"), odsCell("鴻海期貨"), odsNumber("500", "500")),
		odsRow(odsNumber("5", "5"), odsCell("9999"), odsCell("測試"), odsCell("ZZF"), odsCell("測試期貨"), odsCell("N/A")),
		odsRow(odsCell("註：以上資料僅供參考")),
	)
}

func TestParseFutures(t *testing.T) {
	contracts, err := ParseFuturesBytes(futuresFixture(t), fixedNow)
	if err != nil {
		t.Fatalf("ParseFutures: %v", err)
	}
	if len(contracts) != 5 {
		t.Fatalf("expected 5 contracts, got %d: %+v", len(contracts), contracts)
	}

	want := []struct {
		symbol   string
		category string
		unit     string
	}{
		{symbol: "CDF", category: entity.FutureCategoryStock, unit: "2000"},
		{symbol: "QFF", category: entity.FutureCategoryMicro, unit: "100"},
		{symbol: "NYF", category: entity.FutureCategorySmall, unit: "10"},
		{symbol: "DHF", category: entity.FutureCategoryOther, unit: "500"},
		{symbol: "ZZF", category: entity.FutureCategoryUnknown, unit: "N/A"},
	}
	for i, w := range want {
		got := contracts[i]
		if got.Symbol != w.symbol || got.Category != w.category || got.UnitSize.String != w.unit {
			t.Fatalf("row %d: got %+v, want %+v", i, got, w)
		}
		if got.ID == "" || !got.UpdatedAt.Equal(fixedNow) {
			t.Fatalf("row %d: missing id or timestamp: %+v", i, got)
		}
	}

	first := contracts[0]
	if first.Name != "台積電期貨" || first.UnderlyingCode.String != "2330" || first.UnderlyingName.String != "台積電" {
		t.Fatalf("unexpected mapping: %+v", first)
	}
	if contracts[2].UnderlyingName.String != "元大 台灣50" {
		t.Fatalf("expected text:s to become a space, got %q", contracts[2].UnderlyingName.String)
	}

	var raw map[string]string
	if err := json.Unmarshal([]byte(first.Raw), &raw); err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	if raw["證券代號"] != "2330" || raw["備註.1"] != "x" || raw["類型"] != entity.FutureCategoryStock {
		t.Fatalf("unexpected raw columns: %v", raw)
	}
}

func TestParseFuturesRejectsInvalidArchive(t *testing.T) {
	if _, err := ParseFuturesBytes([]byte("not a zip"), fixedNow); err == nil {
		t.Fatal("expected error for invalid archive")
	}
}

func TestParseFuturesRejectsNonSpreadsheet(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		wantErr error
	}{
		{
			name:  "text document",
			files: map[string]string{"mimetype": "application/vnd.oasis.opendocument.text", "content.xml": "<office:document-content/>"},
		},
		{
			name: "no table",
			files: map[string]string{
				"mimetype": "application/vnd.oasis.opendocument.spreadsheet",
				"content.xml": `<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0">` +
					`<office:body><office:spreadsheet/></office:body></office:document-content>`,
			},
			wantErr: ErrNoSheet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFuturesBytes(zipFiles(t, tt.files), fixedNow)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDedupColumns(t *testing.T) {
	got := dedupColumns([]string{" A ", "A", "B", "A", ""})
	want := []string{"A", "A.1", "B", "A.2", "Unnamed: 4"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestFutureCategory(t *testing.T) {
	tests := []struct {
		unit string
		want string
	}{
		{unit: "2000", want: entity.FutureCategoryStock},
		{unit: "2,000", want: entity.FutureCategoryStock},
		{unit: "2000.0", want: entity.FutureCategoryStock},
		{unit: "100", want: entity.FutureCategoryMicro},
		{unit: "10", want: entity.FutureCategorySmall},
		{unit: "1000", want: entity.FutureCategoryOther},
		{unit: "", want: entity.FutureCategoryUnknown},
		{unit: "abc", want: entity.FutureCategoryUnknown},
	}

	for _, tt := range tests {
		if got := FutureCategory(tt.unit); got != tt.want {
			t.Fatalf("FutureCategory(%q) = %q, want %q", tt.unit, got, tt.want)
		}
	}
}

const stockPage = `<html><head><meta http-equiv="Content-Type" content="text/html; charset=MS950"></head><body>
<table class='h4' align=center cellSpacing=3 cellPadding=2 width=750 border=0>
<tr align=center><td bgcolor=#D5FFD5>有價證券代號及名稱 </td><td bgcolor=#D5FFD5>國際證券辨識號碼(ISIN Code)</td><td bgcolor=#D5FFD5>上市日</td><td bgcolor=#D5FFD5>市場別</td><td bgcolor=#D5FFD5>產業別</td><td bgcolor=#D5FFD5>CFICode</td><td bgcolor=#D5FFD5>備註</td></tr>
<tr><td bgcolor=#FAFAD2 colspan=7 ><B> 股票 <B> </td></tr>
<tr><td bgcolor=#FAFAD2>2330　台積電</td><td bgcolor=#FAFAD2>TW0002330008</td><td bgcolor=#FAFAD2>1994/09/05</td><td bgcolor=#FAFAD2>上市</td><td bgcolor=#FAFAD2>半導體業</td><td bgcolor=#FAFAD2>ESVUFR</td><td bgcolor=#FAFAD2></td></tr>
<tr><td bgcolor=#FAFAD2>0050　元大台灣50</td><td bgcolor=#FAFAD2>TW0000050004</td><td bgcolor=#FAFAD2>2003/06/30</td><td bgcolor=#FAFAD2>上市</td><td bgcolor=#FAFAD2></td><td bgcolor=#FAFAD2>CEOGEU</td><td bgcolor=#FAFAD2></td></tr>
<tr><td bgcolor=#FAFAD2>030001　台積電元大3A購01</td><td bgcolor=#FAFAD2>TW18Z0300012</td><td bgcolor=#FAFAD2>2024/01/02</td><td bgcolor=#FAFAD2>上市</td><td bgcolor=#FAFAD2></td><td bgcolor=#FAFAD2>RWSCCE</td><td bgcolor=#FAFAD2></td></tr>
<tr><td bgcolor=#FAFAD2>020000　富邦特選蘋果N</td><td bgcolor=#FAFAD2>TW0002000007</td><td bgcolor=#FAFAD2>2020/02/17</td><td bgcolor=#FAFAD2>上市</td><td bgcolor=#FAFAD2></td><td bgcolor=#FAFAD2>LXXXXX</td><td bgcolor=#FAFAD2></td></tr>
</table></body></html>`

func big5(t *testing.T, s string) []byte {
	t.Helper()
	encoded, err := traditionalchinese.Big5.NewEncoder().String(s)
	if err != nil {
		t.Fatalf("encode big5: %v", err)
	}
	return []byte(encoded)
}

func TestParseStocks(t *testing.T) {
	inputs := map[string][]byte{
		"big5":  big5(t, stockPage),
		"utf-8": []byte(stockPage),
	}

	for name, input := range inputs {
		stocks, err := ParseStocks(bytes.NewReader(input), fixedNow)
		if err != nil {
			t.Fatalf("%s: ParseStocks: %v", name, err)
		}
		if len(stocks) != 3 {
			t.Fatalf("%s: expected warrants and section rows to be dropped, got %+v", name, stocks)
		}

		tsmc := stocks[0]
		if tsmc.Code != "2330" || tsmc.Name != "台積電" || tsmc.FullName != "2330 台積電" {
			t.Fatalf("%s: unexpected split: %+v", name, tsmc)
		}
		if tsmc.ListedDate.String != "1994/09/05" || tsmc.Market.String != "上市" || tsmc.Industry.String != "半導體業" || tsmc.CFICode.String != "ESVUFR" {
			t.Fatalf("%s: unexpected columns: %+v", name, tsmc)
		}
		if stocks[1].Code != "0050" || stocks[1].Industry.Valid {
			t.Fatalf("%s: unexpected etf row: %+v", name, stocks[1])
		}
		if stocks[2].CFICode.String != "LXXXXX" {
			t.Fatalf("%s: expected note row, got %+v", name, stocks[2])
		}
	}
}

func TestParseStocksWithoutTable(t *testing.T) {
	if _, err := ParseStocks(strings.NewReader("<html><body><p>maintenance</p></body></html>"), fixedNow); err != ErrNoTable {
		t.Fatalf("expected ErrNoTable, got %v", err)
	}
}

func TestSplitCodeAndName(t *testing.T) {
	tests := []struct {
		in   string
		code string
		name string
	}{
		{in: "2330 台積電", code: "2330", name: "台積電"},
		{in: "2330　台積電", code: "2330", name: "台積電"},
		{in: "00878 國泰 永續高股息", code: "00878", name: "國泰 永續高股息"},
		{in: "2330", code: "2330", name: ""},
	}

	for _, tt := range tests {
		code, name := splitCodeAndName(tt.in)
		if code != tt.code || name != tt.name {
			t.Fatalf("splitCodeAndName(%q) = %q, %q", tt.in, code, name)
		}
	}
}
