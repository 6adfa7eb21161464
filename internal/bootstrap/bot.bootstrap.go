package bootstrap

import (
	"context"
	"fmt"

	"github.com/krobus00/sj-trading/internal/config"
	"github.com/krobus00/sj-trading/internal/service/telegram"
	"github.com/krobus00/sj-trading/internal/util"
	"github.com/spf13/cobra"
)

func StartBot(cmd *cobra.Command, args []string) {
	simulation := simulationFlag(cmd)

	api, err := telegram.NewAPI(config.Env.Telegram)
	util.ContinueOrFatal(err)

	ctx := context.Background()
	s, err := openSession(ctx, simulation, sessionOptions{metrics: true})
	util.ContinueOrFatal(err)

	deps := telegram.BotDependencies{
		Orders:    s.orders,
		Contracts: s.broker,
		Notifier:  s.notifier,
	}
	if s.db != nil {
		deps.Search = buildContractManager(ctx, s.db)
	}

	bot, err := telegram.NewBot(api, config.Env.Telegram, deps, simulation)
	util.ContinueOrFatal(err)

	err = runUntilShutdown(ctx, s.cleanUpOps(), bot.Run)
	util.ContinueOrFatal(err)
	fmt.Println("Bot stopped by user.")
}
