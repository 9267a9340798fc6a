package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonwraymond/realmgate/observe"
)

type refresher interface {
	Refresh(ctx context.Context) error
}

// scheduleRefresh runs r.Refresh on schedule so the key set is warm before
// tokens signed by a new key arrive. The returned scheduler is not started.
func scheduleRefresh(schedule string, r refresher, timeout time.Duration, logger observe.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, refreshJob(r, timeout, logger)); err != nil {
		return nil, err
	}
	return c, nil
}

func refreshJob(r refresher, timeout time.Duration, logger observe.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := r.Refresh(ctx); err != nil {
			logger.Error(ctx, "scheduled key set refresh failed", observe.F("error", err))
			return
		}
		logger.Debug(ctx, "scheduled key set refresh done")
	}
}
