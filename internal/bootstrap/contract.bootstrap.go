package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jmoiron/sqlx"
	"github.com/krobus00/sj-trading/internal/config"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/krobus00/sj-trading/internal/repository"
	"github.com/krobus00/sj-trading/internal/service/contract"
	"github.com/krobus00/sj-trading/internal/service/gsheet"
	"github.com/krobus00/sj-trading/internal/util"
	"github.com/spf13/cobra"
)

var errDatabaseRequired = errors.New("database.dsn is required for the contract cache")

func newContractManager(ctx context.Context) (*contract.Manager, *sqlx.DB, error) {
	db, err := openDatabase(ctx)
	if err != nil {
		return nil, nil, err
	}
	if db == nil {
		return nil, nil, errDatabaseRequired
	}

	return buildContractManager(ctx, db), db, nil
}

func buildContractManager(ctx context.Context, db *sqlx.DB) *contract.Manager {
	manager := contract.NewManager(
		repository.NewFutureContractRepository(db),
		repository.NewStockContractRepository(db),
		config.Env.Contract,
	)

	sheetConfig := config.Env.GoogleSheet
	if sheetConfig.URL != "" && sheetConfig.Tab != "" {
		manager.SetSheetSync(gsheet.NewClient(ctx, sheetConfig.CredentialsPath), sheetConfig.URL, sheetConfig.Tab)
	}

	return manager
}

func StartReloadContracts(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("type")
	filePath, _ := cmd.Flags().GetString("file-path")

	ctx := context.Background()
	manager, db, err := newContractManager(ctx)
	util.ContinueOrFatal(err)
	defer db.Close()

	result, err := manager.Reload(ctx, entity.ContractKind(strings.ToLower(kind)), filePath)
	if err != nil {
		fmt.Printf("Error reloading data: %v\n", err)
		os.Exit(1)
	}

	if result.Futures > 0 {
		fmt.Printf("Futures info reloaded (%d contracts).\n", result.Futures)
	}
	if result.Stocks > 0 {
		fmt.Printf("Stock info reloaded (%d securities).\n", result.Stocks)
	}
}

func StartInfo(cmd *cobra.Command, args []string) {
	query := strings.Join(args, " ")

	ctx := context.Background()
	manager, db, err := newContractManager(ctx)
	util.ContinueOrFatal(err)
	defer db.Close()

	result, err := manager.Search(ctx, query)
	if err != nil {
		fmt.Printf("Error searching data: %v\n", err)
		os.Exit(1)
	}

	if result.Empty() {
		fmt.Printf("No results found for '%s'.\n", query)
		return
	}

	if len(result.Futures) > 0 {
		fmt.Printf("\n[Futures Results] (%d)\n", len(result.Futures))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "symbol\tname\tunderlying_code\tunderlying_name\tunit_size\tcategory")
		for _, f := range result.Futures {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", f.Symbol, f.Name, f.UnderlyingCode.String, f.UnderlyingName.String, f.UnitSize.String, f.Category)
		}
		_ = w.Flush()
	}

	if len(result.Stocks) > 0 {
		fmt.Printf("\n[Stock Results] (%d)\n", len(result.Stocks))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, strings.Join(entity.StockSheetHeader, "\t"))
		for _, stock := range result.Stocks {
			fmt.Fprintln(w, strings.Join(stock.SheetRow(), "\t"))
		}
		_ = w.Flush()
	}
}
