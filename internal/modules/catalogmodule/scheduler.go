package catalogmodule

import (
	"time"

	"github.com/go-co-op/gocron"
	"github.com/hashicorp/go-hclog"
)

// RefreshScheduler refreshes the catalog at a fixed interval.
type RefreshScheduler struct {
	scheduler *gocron.Scheduler
	interval  time.Duration
	logger    hclog.Logger
}

// NewRefreshScheduler schedules refresh every interval, first firing one
// interval after Start.
func NewRefreshScheduler(interval time.Duration, refresh func(), logger hclog.Logger) (*RefreshScheduler, error) {
	s := gocron.NewScheduler(time.UTC)
	logger = logger.Named("scheduler")

	_, err := s.Every(interval).WaitForSchedule().Do(func() {
		logger.Debug("scheduled catalog refresh")
		refresh()
	})
	if err != nil {
		return nil, err
	}
	return &RefreshScheduler{scheduler: s, interval: interval, logger: logger}, nil
}

// Start runs the scheduler in the background.
func (r *RefreshScheduler) Start() {
	r.scheduler.StartAsync()
	r.logger.Info("periodic refresh scheduled", "interval", r.interval)
}

// Stop stops the scheduler.
func (r *RefreshScheduler) Stop() {
	r.scheduler.Stop()
}
