package autobilling

import (
	"context"

	"github.com/jvcardoso/proteamcare-billing/internal/config"
	cron "github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("autobilling",
	fx.Provide(FromApp),
	fx.Provide(New),
	fx.Invoke(registerCron),
)

// registerCron schedules the daily batch run. A tick that finds a run still
// in flight is skipped; the next tick catches any contracts left due.
func registerCron(lc fx.Lifecycle, cfg config.Config, runner *Runner, log *zap.Logger) {
	log = log.Named("autobilling.cron")
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))

	spec := cfg.Billing.CronSpec
	if spec == "" {
		spec = DefaultConfig().CronSpec
	}
	if _, err := c.AddFunc(spec, func() {
		report, err := runner.RunOnce(context.Background(), false)
		if err != nil {
			log.Warn("scheduled run failed", zap.Error(err))
			return
		}
		log.Info("scheduled run completed",
			zap.Int("attempted", report.TotalAttempted),
			zap.Int("failed", report.TotalFailed),
		)
	}); err != nil {
		log.Error("invalid cron spec", zap.String("spec", spec), zap.Error(err))
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopCtx := c.Stop()
			select {
			case <-stopCtx.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
}
