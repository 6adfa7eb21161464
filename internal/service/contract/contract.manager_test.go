package contract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/krobus00/sj-trading/internal/config"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/krobus00/sj-trading/internal/infrastructure"
	"github.com/krobus00/sj-trading/internal/repository"
)

type recordingSheet struct {
	calls  int
	url    string
	tab    string
	header []string
	rows   [][]string
}

func (s *recordingSheet) UpdateSheet(ctx context.Context, url, tab string, header []string, rows [][]string) error {
	s.calls++
	s.url, s.tab, s.header, s.rows = url, tab, header, rows
	return nil
}

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()

	dir := t.TempDir()
	db, err := infrastructure.NewDatabaseConnection(context.Background(), config.DatabaseConfig{
		Driver: infrastructure.DriverSQLite,
		DSN:    filepath.Join(dir, "contracts.db"),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := infrastructure.MigrateUp(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "futures.ods"), futuresFixture(t), 0o600); err != nil {
		t.Fatalf("write ods: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "C_public.html"), big5(t, stockPage), 0o600); err != nil {
		t.Fatalf("write html: %v", err)
	}

	manager := NewManager(
		repository.NewFutureContractRepository(db),
		repository.NewStockContractRepository(db),
		config.ContractConfig{
			FuturesFile: filepath.Join(dir, "futures.ods"),
			StockFiles:  []string{filepath.Join(dir, "C_public.html"), filepath.Join(dir, "C_public_4.html")},
		},
	)
	manager.now = func() time.Time { return fixedNow }
	return manager, dir
}

func TestManagerReloadAllSyncsStocks(t *testing.T) {
	manager, _ := newTestManager(t)
	sheet := &recordingSheet{}
	manager.SetSheetSync(sheet, "https://docs.google.com/spreadsheets/d/abc/edit", "Stocks")

	result, err := manager.Reload(context.Background(), entity.ContractKindAll, "")
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if result.Futures != 5 || result.Stocks != 3 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if sheet.calls != 1 || sheet.tab != "Stocks" || len(sheet.rows) != 3 {
		t.Fatalf("unexpected sheet sync: %+v", sheet)
	}
	if sheet.header[0] != "有價證券代號及名稱" || sheet.rows[0][1] != "2330" || sheet.rows[0][2] != "台積電" {
		t.Fatalf("unexpected sheet content: %v %v", sheet.header, sheet.rows[0])
	}
}

func TestManagerSheetSyncNeedsURLAndTab(t *testing.T) {
	manager, _ := newTestManager(t)
	sheet := &recordingSheet{}
	manager.SetSheetSync(sheet, "https://docs.google.com/spreadsheets/d/abc/edit", "")

	if _, err := manager.Reload(context.Background(), entity.ContractKindStock, ""); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if sheet.calls != 0 {
		t.Fatalf("expected no sheet sync, got %d", sheet.calls)
	}
}

func TestManagerReloadErrors(t *testing.T) {
	manager, dir := newTestManager(t)
	ctx := context.Background()

	if _, err := manager.Reload(ctx, entity.ContractKind("options"), ""); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected unknown kind, got %v", err)
	}
	if _, err := manager.Reload(ctx, entity.ContractKindAll, filepath.Join(dir, "futures.ods")); !errors.Is(err, ErrFilePathNeedsKind) {
		t.Fatalf("expected file path error, got %v", err)
	}
	if _, err := manager.Reload(ctx, entity.ContractKindFuture, filepath.Join(dir, "missing.ods")); err == nil || !strings.Contains(err.Error(), "file not found") {
		t.Fatalf("expected file not found, got %v", err)
	}
	if _, err := manager.Reload(ctx, entity.ContractKindStock, filepath.Join(dir, "missing.html")); !errors.Is(err, ErrNoStockData) {
		t.Fatalf("expected no stock data, got %v", err)
	}

	result, err := manager.Reload(ctx, entity.ContractKindStock, filepath.Join(dir, "C_public.html"))
	if err != nil || result.Stocks != 3 || result.Futures != 0 {
		t.Fatalf("unexpected override reload: %+v, %v", result, err)
	}
}

func TestManagerSearchReloadsEmptyCache(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	result, err := manager.Search(ctx, "台積")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Futures) != 2 || len(result.Stocks) != 1 || result.Stocks[0].Code != "2330" {
		t.Fatalf("unexpected result: %+v", result)
	}

	result, err = manager.Search(ctx, "cdf")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Futures) != 1 || result.Futures[0].Symbol != "CDF" || len(result.Stocks) != 0 {
		t.Fatalf("expected case-insensitive symbol match, got %+v", result)
	}

	result, err = manager.Search(ctx, "nothing-here")
	if err != nil || !result.Empty() {
		t.Fatalf("expected empty result, got %+v, %v", result, err)
	}
}
