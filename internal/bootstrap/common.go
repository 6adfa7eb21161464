package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/krobus00/sj-trading/internal/config"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type operation func(ctx context.Context) error

// runUntilShutdown runs fn until it returns or a termination signal cancels its context, then
// executes the clean up operations.
func runUntilShutdown(ctx context.Context, ops map[string]operation, fn func(ctx context.Context) error) error {
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	err := fn(runCtx)
	if runCtx.Err() != nil && ctx.Err() == nil {
		logrus.Info("shutting down")
	}

	cleanUp(ctx, config.Env.GracefulShutdownTimeout, ops)
	return err
}

// cleanUp runs the operations concurrently and force exits when they exceed timeout.
func cleanUp(ctx context.Context, timeout time.Duration, ops map[string]operation) {
	if len(ops) == 0 {
		return
	}

	// set timeout for the ops to be done to prevent system hang
	timeoutFunc := time.AfterFunc(timeout, func() {
		logrus.Error(fmt.Sprintf("timeout %d ms has been elapsed, force exit", timeout.Milliseconds()))
		os.Exit(0)
	})

	defer timeoutFunc.Stop()

	var wg sync.WaitGroup

	for key, op := range ops {
		wg.Add(1)
		go func() {
			defer wg.Done()

			logrus.Debug(fmt.Sprintf("cleaning up: %s", key))
			if err := op(ctx); err != nil {
				logrus.Error(fmt.Sprintf("%s: clean up failed: %s", key, err.Error()))
				return
			}

			logrus.Debug(fmt.Sprintf("%s was shutdown gracefully", key))
		}()
	}

	wg.Wait()
}

// simulationFlag resolves --sim and --no-sim. --no-sim wins.
func simulationFlag(cmd *cobra.Command) bool {
	simulation, _ := cmd.Flags().GetBool("sim")
	noSimulation, _ := cmd.Flags().GetBool("no-sim")
	return simulation && !noSimulation
}

func envLabel(simulation bool) string {
	if simulation {
		return "SIMULATED"
	}
	return "REAL"
}

func formatTrade(trade entity.Trade) string {
	return fmt.Sprintf("ID: %s | %s | %s %d @ %s | Status: %s",
		trade.Order.ID,
		trade.Contract.Code,
		trade.Order.Action,
		trade.Order.Quantity,
		trade.DisplayPrice().String(),
		trade.Status.Status,
	)
}
