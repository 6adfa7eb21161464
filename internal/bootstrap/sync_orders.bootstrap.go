package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/krobus00/sj-trading/internal/repository"
	"github.com/krobus00/sj-trading/internal/service/order"
	"github.com/krobus00/sj-trading/internal/util"
	"github.com/spf13/cobra"
)

func StartSyncOrders(cmd *cobra.Command, args []string) {
	interval, _ := cmd.Flags().GetDuration("interval")
	once, _ := cmd.Flags().GetBool("once")
	simulation := simulationFlag(cmd)

	ctx := context.Background()
	s, err := openSession(ctx, simulation, sessionOptions{metrics: !once})
	util.ContinueOrFatal(err)

	if s.db == nil {
		s.close(ctx)
		util.ContinueOrFatal(errors.New("order sync requires database.dsn"))
	}

	sync := order.NewJournalSync(s.orders, repository.NewOrderHistoryRepository(s.db), interval)

	if once {
		synced, err := sync.SyncPending(ctx)
		fmt.Printf("Synced %d order(s).\n", synced)
		s.close(ctx)
		util.ContinueOrFatal(err)
		return
	}

	err = runUntilShutdown(ctx, s.cleanUpOps(), sync.Run)
	util.ContinueOrFatal(err)
}
