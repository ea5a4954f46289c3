package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// PrunerConfig configures retention enforcement.
type PrunerConfig struct {
	Store Store
	// Retention deletes events older than this. Zero disables pruning.
	Retention time.Duration
	// Schedule is a standard cron spec or descriptor (default "@hourly").
	Schedule string
	Logger   *slog.Logger
	Now      func() time.Time
}

// Pruner deletes expired journal events on a cron schedule.
type Pruner struct {
	cfg  PrunerConfig
	cron *cron.Cron
}

// StartPruner validates cfg and schedules retention passes. With no
// retention configured it returns a Pruner that never runs.
func StartPruner(cfg PrunerConfig) (*Pruner, error) {
	if cfg.Store == nil {
		return nil, errors.New("journal: store is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cfg.Logger = cfg.Logger.With("component", "journal")
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = "@hourly"
	}

	p := &Pruner{cfg: cfg}
	if cfg.Retention <= 0 {
		return p, nil
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule, func() {
		_, _ = p.RunOnce(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("journal: invalid prune schedule %q: %w", cfg.Schedule, err)
	}
	c.Start()
	p.cron = c
	return p, nil
}

// RunOnce performs a single retention pass.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	if p.cfg.Retention <= 0 {
		return 0, nil
	}
	cutoff := p.cfg.Now().Add(-p.cfg.Retention)
	removed, err := p.cfg.Store.Prune(ctx, cutoff)
	if err != nil {
		p.cfg.Logger.Error("journal prune failed", "error", err)
		return 0, err
	}
	if removed > 0 {
		p.cfg.Logger.Info("journal pruned", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// Stop cancels the schedule and waits for a running pass to finish.
func (p *Pruner) Stop() {
	if p == nil || p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
}
