package transport

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Heartbeat runs a periodic liveness job.
type Heartbeat struct {
	cron *cron.Cron
}

// StartHeartbeat schedules fn every interval. A non-positive interval
// disables the heartbeat and returns a Heartbeat whose Stop is a no-op.
func StartHeartbeat(interval time.Duration, fn func()) (*Heartbeat, error) {
	if interval <= 0 {
		return &Heartbeat{}, nil
	}
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), fn); err != nil {
		return nil, fmt.Errorf("transport: schedule heartbeat: %w", err)
	}
	c.Start()
	return &Heartbeat{cron: c}, nil
}

// Stop halts scheduling without waiting for a running job.
func (h *Heartbeat) Stop() {
	if h == nil || h.cron == nil {
		return
	}
	_ = h.cron.Stop()
}
