package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"shared-planner/internal/bot"
	"shared-planner/internal/metrics"
	"shared-planner/internal/service"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot with scheduled reports",
	Long: `Run the Telegram bot until interrupted.

Reports are sent every REPORT_INTERVAL_HOURS, or daily at REPORT_TIME when
it is set. With METRICS_ADDR the prometheus metrics are served on /metrics.`,
	Args: cobra.NoArgs,
	RunE: runBot,
}

func runBot(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return withApp(cmd, func(_ context.Context, a *app) error {
		if err := a.cfg.RequireTelegram(); err != nil {
			return err
		}

		telegramBot, err := bot.New(a.cfg.TelegramToken, a.store, a.services, a.reminders, a.clock, &a.cfg, a.log)
		if err != nil {
			return err
		}

		scheduler := service.NewSchedulerService(a.loc, a.log)
		switch {
		case a.cfg.ReportTime != "":
			if _, err := scheduler.ScheduleDaily("daily report", a.cfg.ReportTime, telegramBot.ReportJob); err != nil {
				return err
			}
		case a.cfg.ReportInterval() > 0:
			if _, err := scheduler.ScheduleInterval("report", a.cfg.ReportInterval(), telegramBot.ReportJob); err != nil {
				return err
			}
		}
		scheduler.Start()
		defer scheduler.Stop()

		if a.cfg.MetricsAddr != "" {
			go func() {
				if err := metrics.Serve(ctx, a.cfg.MetricsAddr, a.log); err != nil {
					a.log.Error().Err(err).Msg("metrics server stopped")
				}
			}()
		}

		a.log.Info().Msg("planner bot started")
		if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		a.log.Info().Msg("shutdown complete")
		return nil
	})
}
