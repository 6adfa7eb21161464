package bootstrap

import (
	"context"
	"errors"

	"github.com/guregu/null/v6"
	"github.com/krobus00/sj-trading/internal/config"
	"github.com/krobus00/sj-trading/internal/infrastructure"
	"github.com/krobus00/sj-trading/internal/util"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

// migrationSourceDir is where new migration files are written; applied migrations are embedded.
const migrationSourceDir = "migration"

func StartMigrate(cmd *cobra.Command, args []string) {
	actionType, _ := cmd.Flags().GetString("action")
	migrationName, _ := cmd.Flags().GetString("name")
	version, _ := cmd.Flags().GetInt64("version")

	dbConfig := config.Env.Database
	db, err := infrastructure.NewDatabaseConnection(context.Background(), dbConfig)
	util.ContinueOrFatal(err)
	defer db.Close()

	err = infrastructure.PrepareGoose(db.DriverName())
	util.ContinueOrFatal(err)

	migrationDir := "."

	switch actionType {
	case "create":
		goose.SetBaseFS(nil)
		err = goose.Create(db.DB, migrationSourceDir, migrationName, "sql")
	case "up":
		err = goose.Up(db.DB, migrationDir, goose.WithAllowMissing())
	case "up-by-one":
		err = goose.UpByOne(db.DB, migrationDir, goose.WithAllowMissing())
	case "up-to":
		err = goose.UpTo(db.DB, migrationDir, null.IntFrom(version).Int64, goose.WithAllowMissing())
	case "down":
		err = goose.Down(db.DB, migrationDir, goose.WithAllowMissing())
	case "down-to":
		err = goose.DownTo(db.DB, migrationDir, null.IntFrom(version).Int64, goose.WithAllowMissing())
	case "status":
		err = goose.Status(db.DB, migrationDir)
	case "reset":
		err = goose.Reset(db.DB, migrationDir, goose.WithAllowMissing())
		if err != nil {
			break
		}
		err = goose.Up(db.DB, migrationDir, goose.WithAllowMissing())
	default:
		err = errors.New("invalid command")
	}

	util.ContinueOrFatal(err)
}
