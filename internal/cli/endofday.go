package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"brokerage-backoffice/internal/scheduler"
)

func newEndOfDayCmd(app *App) *cobra.Command {
	var dateFlag string

	cmd := &cobra.Command{
		Use:   "eod",
		Short: "Run the end-of-day sweep once",
		Long: `Cancel every order still OPEN for the given trading day. Without
--date the sweep targets today and refuses to run before the market closes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			lifecycle := scheduler.NewLifecycle(app.Store, app.Hours, app.Logger)

			if dateFlag != "" {
				day, err := time.Parse("2006-01-02", dateFlag)
				if err != nil {
					return fmt.Errorf("invalid --date %q, want YYYY-MM-DD: %w", dateFlag, err)
				}
				n, err := lifecycle.CancelOpenOrdersFor(ctx, day)
				if err != nil {
					return err
				}
				output.Success("Cancelled %d open order(s) for %s", n, dateFlag)
				return nil
			}

			eod := scheduler.NewEndOfDay(app.Hours, lifecycle, app.Logger,
				app.Config.Scheduler.EndOfDayInterval)
			n, err := eod.RunOnce(ctx)
			if err != nil {
				return err
			}
			if !app.Hours.IsPastClose() {
				output.Warning("Market has not closed yet, sweep skipped")
				return nil
			}
			output.Success("Cancelled %d open order(s)", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&dateFlag, "date", "", "sweep a specific day (YYYY-MM-DD)")
	return cmd
}
