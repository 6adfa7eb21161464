package gsheet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	valueInputRaw         = "RAW"
	valueInputUserEntered = "USER_ENTERED"
)

var (
	ErrInvalidSpreadsheetURL = errors.New("invalid spreadsheet url")

	spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)
	plainIDPattern       = regexp.MustCompile(`^[a-zA-Z0-9-_]+$`)
)

// Client writes to Google Sheets with a service account. A zero-service client is unauthenticated
// and skips every write.
type Client struct {
	service *sheets.Service
}

// NewClient authenticates with the service account file at credentialsPath.
func NewClient(ctx context.Context, credentialsPath string) *Client {
	if _, err := os.Stat(credentialsPath); err != nil {
		logrus.WithField("path", credentialsPath).Warn("google sheet credential file not found")
		return &Client{}
	}

	client, err := NewClientWithOptions(ctx,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		logrus.Errorf("failed to authenticate google sheet: %v", err)
		return &Client{}
	}

	logrus.Info("google sheet service account authenticated")
	return client
}

func NewClientWithOptions(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	service, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{service: service}, nil
}

func (c *Client) Authenticated() bool {
	return c != nil && c.service != nil
}

// UpdateSheet replaces the content of tab with header and rows, creating the tab when missing.
func (c *Client) UpdateSheet(ctx context.Context, url, tab string, header []string, rows [][]string) error {
	if !c.Authenticated() {
		logrus.Warn("google sheet client not authenticated, skipping update")
		return nil
	}

	spreadsheetID, err := SpreadsheetID(url)
	if err != nil {
		return err
	}

	if err := c.ensureTab(ctx, spreadsheetID, tab); err != nil {
		return err
	}

	logrus.WithField("tab", tab).Info("updating worksheet")

	_, err = c.service.Spreadsheets.Values.Clear(spreadsheetID, tab, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear worksheet %s: %w", tab, err)
	}

	values := make([][]any, 0, len(rows)+1)
	values = append(values, toValues(header, len(header)))
	for _, row := range rows {
		values = append(values, toValues(row, len(header)))
	}

	_, err = c.service.Spreadsheets.Values.Update(spreadsheetID, tab+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption(valueInputRaw).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update worksheet %s: %w", tab, err)
	}

	logrus.WithFields(logrus.Fields{
		"tab":  tab,
		"rows": len(rows),
	}).Info("google sheet updated")
	return nil
}

// AddTradingRecord writes record on the row after the last value of column A.
func (c *Client) AddTradingRecord(ctx context.Context, url, tab string, record entity.TradeRecord) error {
	if !c.Authenticated() {
		logrus.Warn("google sheet client not authenticated, skipping trading record")
		return nil
	}

	spreadsheetID, err := SpreadsheetID(url)
	if err != nil {
		return err
	}

	existing, err := c.service.Spreadsheets.Values.Get(spreadsheetID, tab+"!A:A").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read worksheet %s: %w", tab, err)
	}

	next := len(existing.Values) + 1
	rng := fmt.Sprintf("%s!A%d:G%d", tab, next, next)

	_, err = c.service.Spreadsheets.Values.Update(spreadsheetID, rng, &sheets.ValueRange{Values: [][]any{record.Row()}}).
		ValueInputOption(valueInputUserEntered).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append trading record: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"symbol": record.Symbol,
		"range":  rng,
	}).Info("trading record added")
	return nil
}

func (c *Client) ensureTab(ctx context.Context, spreadsheetID, tab string) error {
	spreadsheet, err := c.service.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("open spreadsheet: %w", err)
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == tab {
			return nil
		}
	}

	logrus.WithField("tab", tab).Info("worksheet not found, creating it")
	_, err = c.service.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: tab}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("create worksheet %s: %w", tab, err)
	}
	return nil
}

// SpreadsheetID extracts the document id from a spreadsheet url. A bare id is returned as is.
func SpreadsheetID(url string) (string, error) {
	url = strings.TrimSpace(url)
	if match := spreadsheetIDPattern.FindStringSubmatch(url); len(match) == 2 {
		return match[1], nil
	}
	if plainIDPattern.MatchString(url) {
		return url, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSpreadsheetURL, url)
}

func toValues(cells []string, width int) []any {
	if len(cells) > width {
		width = len(cells)
	}
	values := make([]any, width)
	for i := range values {
		values[i] = ""
		if i < len(cells) {
			values[i] = cells[i]
		}
	}
	return values
}

// TradeJournal appends closed trades to a fixed spreadsheet tab.
type TradeJournal struct {
	client *Client
	url    string
	tab    string
}

func NewTradeJournal(client *Client, url, tab string) *TradeJournal {
	return &TradeJournal{client: client, url: url, tab: tab}
}

func (j *TradeJournal) AddTradingRecord(ctx context.Context, record entity.TradeRecord) error {
	return j.client.AddTradingRecord(ctx, j.url, j.tab, record)
}
