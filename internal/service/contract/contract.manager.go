package contract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/krobus00/sj-trading/internal/config"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoStockData       = errors.New("no stock data files found or parsed successfully")
	ErrUnknownKind       = errors.New("unknown contract type")
	ErrFilePathNeedsKind = errors.New("--file-path requires --type future or stock")
)

type FutureRepository interface {
	ReplaceAll(ctx context.Context, contracts []entity.FutureContractInfo) error
	Count(ctx context.Context) (int64, error)
	Search(ctx context.Context, query string, limit uint64) ([]entity.FutureContractInfo, error)
}

type StockRepository interface {
	ReplaceAll(ctx context.Context, contracts []entity.StockContractInfo) error
	Count(ctx context.Context) (int64, error)
	Search(ctx context.Context, query string, limit uint64) ([]entity.StockContractInfo, error)
}

type SheetSyncer interface {
	UpdateSheet(ctx context.Context, url, tab string, header []string, rows [][]string) error
}

type ReloadResult struct {
	Futures int
	Stocks  int
}

// Manager keeps the local futures and stock lists in the database.
type Manager struct {
	futures FutureRepository
	stocks  StockRepository
	cfg     config.ContractConfig

	sheet    SheetSyncer
	sheetURL string
	sheetTab string

	now func() time.Time
}

func NewManager(futures FutureRepository, stocks StockRepository, cfg config.ContractConfig) *Manager {
	return &Manager{
		futures: futures,
		stocks:  stocks,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetSheetSync mirrors every stock reload to the given tab. It is a no-op unless url and tab are set.
func (m *Manager) SetSheetSync(sheet SheetSyncer, url, tab string) {
	if sheet == nil || url == "" || tab == "" {
		return
	}
	m.sheet = sheet
	m.sheetURL = url
	m.sheetTab = tab
}

// Reload re-reads the source files of kind. filePath overrides the configured file.
func (m *Manager) Reload(ctx context.Context, kind entity.ContractKind, filePath string) (ReloadResult, error) {
	var result ReloadResult

	switch kind {
	case entity.ContractKindAll, entity.ContractKindFuture, entity.ContractKindStock:
	default:
		return result, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if kind == entity.ContractKindAll && filePath != "" {
		return result, ErrFilePathNeedsKind
	}

	if kind == entity.ContractKindAll || kind == entity.ContractKindFuture {
		n, err := m.reloadFutures(ctx, filePath)
		if err != nil {
			return result, err
		}
		result.Futures = n
	}

	if kind == entity.ContractKindAll || kind == entity.ContractKindStock {
		n, err := m.reloadStocks(ctx, filePath)
		if err != nil {
			return result, err
		}
		result.Stocks = n
	}

	return result, nil
}

func (m *Manager) reloadFutures(ctx context.Context, filePath string) (int, error) {
	path := m.cfg.FuturesFile
	if filePath != "" {
		path = filePath
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("file not found: %s", path)
		}
		return 0, err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return 0, err
	}

	logrus.WithField("path", path).Info("reading futures ods file")
	contracts, err := ParseFutures(file, stat.Size(), m.now())
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := m.futures.ReplaceAll(ctx, contracts); err != nil {
		return 0, err
	}

	logrus.WithField("count", len(contracts)).Info("futures contracts saved")
	return len(contracts), nil
}

func (m *Manager) reloadStocks(ctx context.Context, filePath string) (int, error) {
	paths := m.cfg.StockFiles
	if filePath != "" {
		paths = []string{filePath}
	}

	now := m.now()
	stocks := make([]entity.StockContractInfo, 0)
	parsed := 0
	for _, path := range paths {
		file, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			logrus.WithField("path", path).Warn("stock file not found, skipping")
			continue
		}
		if err != nil {
			return 0, err
		}

		logrus.WithField("path", path).Info("reading stock html file")
		rows, err := ParseStocks(file, now)
		_ = file.Close()
		if err != nil {
			logrus.WithField("path", path).Warnf("failed to parse stock file: %v", err)
			continue
		}

		stocks = append(stocks, rows...)
		parsed++
	}

	if parsed == 0 {
		return 0, ErrNoStockData
	}
	logrus.WithFields(logrus.Fields{
		"files": parsed,
		"rows":  len(stocks),
	}).Info("combined stock files")

	if err := m.stocks.ReplaceAll(ctx, stocks); err != nil {
		return 0, err
	}

	if m.sheet != nil {
		logrus.Info("syncing stock list to google sheet")
		rows := make([][]string, 0, len(stocks))
		for _, stock := range stocks {
			rows = append(rows, stock.SheetRow())
		}
		if err := m.sheet.UpdateSheet(ctx, m.sheetURL, m.sheetTab, entity.StockSheetHeader, rows); err != nil {
			logrus.Errorf("failed to update google sheet: %v", err)
		}
	}

	return len(stocks), nil
}

// Search matches futures and stocks containing query. An empty cache is reloaded first.
func (m *Manager) Search(ctx context.Context, query string) (entity.ContractSearchResult, error) {
	var result entity.ContractSearchResult

	if err := m.ensureLoaded(ctx, entity.ContractKindFuture, m.futures.Count); err != nil {
		return result, err
	}
	futures, err := m.futures.Search(ctx, query, 0)
	if err != nil {
		return result, err
	}

	if err := m.ensureLoaded(ctx, entity.ContractKindStock, m.stocks.Count); err != nil {
		return result, err
	}
	stocks, err := m.stocks.Search(ctx, query, 0)
	if err != nil {
		return result, err
	}

	result.Futures = futures
	result.Stocks = stocks
	return result, nil
}

func (m *Manager) ensureLoaded(ctx context.Context, kind entity.ContractKind, count func(context.Context) (int64, error)) error {
	n, err := count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	logrus.WithField("type", kind).Info("contract cache empty, reloading")
	_, err = m.Reload(ctx, kind, "")
	return err
}
