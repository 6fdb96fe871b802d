package warming

import (
	"context"
	"time"

	"encore.dev/cron"
)

// svc is the package-level Warmer instance Encore's cron runtime invokes
// through, following the same package-level-service pattern the rest of
// this fabric uses for its Encore-managed components.
var svc *Warmer

// SetInstance wires the package-level Warmer used by the cron job
// endpoints below. Called once during service initialization.
func SetInstance(w *Warmer) {
	svc = w
}

var _ = cron.NewJob("daily-warmup", cron.JobConfig{
	Title:    "Daily cache warmup",
	Schedule: "0 2 * * *",
	Endpoint: DailyWarmup,
})

// DailyWarmup re-populates the configured full-warmup key set once a day,
// ahead of the daily traffic ramp.
//
//encore:api private
func DailyWarmup(ctx context.Context) error {
	if svc == nil || len(svc.cfg.FullWarmupKeys) == 0 {
		return nil
	}
	svc.WarmKeys(svc.cfg.FullWarmupKeys, 60)
	return nil
}

var _ = cron.NewJob("hourly-refresh", cron.JobConfig{
	Title:    "Hourly predicted-key refresh",
	Schedule: "0 * * * *",
	Endpoint: HourlyRefresh,
})

// HourlyRefresh re-warms the predictor's current top keys every hour.
//
//encore:api private
func HourlyRefresh(ctx context.Context) error {
	if svc == nil {
		return nil
	}
	_, err := svc.TriggerPredictive(ctx)
	return err
}

var _ = cron.NewJob("pre-peak-warmup", cron.JobConfig{
	Title:    "Pre-peak-hours warmup",
	Schedule: "0 7,11,17 * * *",
	Endpoint: PrePeakWarmup,
})

// PrePeakWarmup warms more aggressively an hour ahead of each expected
// peak (morning, midday, evening): it widens the predictive window to two
// hours (the hourly refresh uses one) and queues at priority 90 instead of
// 80; the key limit stays at 100 in both.
//
//encore:api private
func PrePeakWarmup(ctx context.Context) error {
	if svc == nil {
		return nil
	}
	hotKeys, err := svc.predictor.PredictHotKeys(ctx, 2*time.Hour, 100)
	if err != nil {
		return err
	}
	if len(hotKeys) == 0 {
		return nil
	}
	_, err = svc.WarmPattern(ctx, hotKeys, "priority", 90, 0)
	return err
}
