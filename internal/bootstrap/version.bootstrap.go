package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/krobus00/sj-trading/internal/config"
	"github.com/krobus00/sj-trading/internal/service/broker"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const versionTimeout = 5 * time.Second

func StartVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("%s version: %s\n", config.ServiceName, config.ServiceVersion)

	b, err := broker.New(config.Env.Broker, true)
	if err != nil {
		logrus.Warnf("broker unavailable: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
	defer cancel()

	version, err := b.Version(ctx)
	if err != nil {
		logrus.Warnf("broker version unavailable: %v", err)
		return
	}
	fmt.Printf("Broker Version: %s\n", version)
}
