package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/krobus00/sj-trading/internal/constant"
	"github.com/krobus00/sj-trading/internal/entity"
	"github.com/krobus00/sj-trading/internal/util"
	"github.com/spf13/cobra"
)

const quotePrintInterval = time.Second

func StartQuote(cmd *cobra.Command, args []string) {
	rawType, _ := cmd.Flags().GetString("type")
	securityType, ok := entity.ParseSecurityType(rawType)
	if !ok {
		util.ContinueOrFatal(fmt.Errorf("invalid type %q, expected future or stock", rawType))
	}

	ctx := context.Background()
	s, err := openSession(ctx, true, sessionOptions{metrics: true})
	util.ContinueOrFatal(err)

	err = runUntilShutdown(ctx, s.cleanUpOps(), func(ctx context.Context) error {
		fmt.Printf("Subscribing to %v...\n", args)
		if err := s.quotes.Subscribe(ctx, args, securityType, true); err != nil {
			return err
		}

		market := securityType.Market()
		printed := 0
		ticker := time.NewTicker(quotePrintInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				fmt.Println("Stopping...")
				return nil
			case <-ticker.C:
				frame := s.quotes.Frame(market)
				if len(frame) > printed {
					printTicks(os.Stdout, frame[printed:])
					printed = len(frame)
				}
			}
		}
	})
	util.ContinueOrFatal(err)
}

func printTicks(out io.Writer, ticks []entity.Tick) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "datetime\tcode\tprice\tvolume\ttick_type")
	for _, tick := range ticks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			tick.Datetime.Format(constant.DateTimeLayout),
			tick.Code,
			tick.Close.String(),
			tick.Volume,
			tick.TickType,
		)
	}
	_ = w.Flush()
}
