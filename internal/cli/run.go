package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"brokerage-backoffice/internal/scheduler"
)

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the background schedulers",
		Long: `Run the order-matching scheduler and the end-of-day sweep until
interrupted. The matcher ticks on scheduler.match_interval, the sweep on
scheduler.end_of_day_interval.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			matcher := scheduler.NewMatcher(app.Store, app.Prices, app.Hours,
				app.Tracker, app.Logger, scheduler.MatcherConfig{
					Interval:     app.Config.Scheduler.MatchInterval,
					Workers:      app.Config.Scheduler.Workers,
					PriceTimeout: app.Config.Scheduler.PriceTimeout,
				})

			lifecycle := scheduler.NewLifecycle(app.Store, app.Hours, app.Logger)
			eod := scheduler.NewEndOfDay(app.Hours, lifecycle, app.Logger,
				app.Config.Scheduler.EndOfDayInterval)

			app.Logger.Info().
				Dur("match_interval", app.Config.Scheduler.MatchInterval).
				Dur("eod_interval", app.Config.Scheduler.EndOfDayInterval).
				Int("workers", app.Config.Scheduler.Workers).
				Msg("Schedulers starting")

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return matcher.Run(ctx) })
			g.Go(func() error { return eod.Run(ctx) })

			err := g.Wait()
			if errors.Is(err, context.Canceled) {
				err = nil
			}
			app.Logger.Info().Msg("Schedulers stopped")
			return err
		},
	}
}
