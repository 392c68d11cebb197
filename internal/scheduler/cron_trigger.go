package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/woo-erp-sync/internal/erp"
	"github.com/ariefcatur/woo-erp-sync/internal/reconcile"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runner executes one flow for one profile. reconcile.Service implements it.
type Runner interface {
	Run(ctx context.Context, profileID uuid.UUID, flow reconcile.Flow) (*reconcile.Result, error)
}

type ProfileLister interface {
	ListProfiles(ctx context.Context, enabledOnly bool) ([]erp.Profile, error)
}

type Config struct {
	Interval time.Duration
	Flows    []reconcile.Flow
}

func DefaultConfig() Config {
	return Config{Interval: 15 * time.Minute, Flows: []reconcile.Flow{reconcile.FlowImport}}
}

// CronTrigger runs the configured flows for every enabled profile on a fixed
// interval. Ticks are handled on one goroutine, so runs never overlap.
type CronTrigger struct {
	config   Config
	runner   Runner
	profiles ProfileLister
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

func NewCronTrigger(config Config, runner Runner, profiles ProfileLister, logger *zap.Logger) *CronTrigger {
	d := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = d.Interval
	}
	if len(config.Flows) == 0 {
		config.Flows = d.Flows
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CronTrigger{config: config, runner: runner, profiles: profiles, logger: logger}
}

func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return nil
	}
	c.isRunning = true

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	flows := make([]string, len(c.config.Flows))
	for i, f := range c.config.Flows {
		flows[i] = string(f)
	}
	c.logger.Info("Sync cron trigger started",
		zap.Duration("interval", c.config.Interval),
		zap.Strings("flows", flows),
	)
	return nil
}

// Stop cancels the loop and waits for the current tick to finish, or for ctx.
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Sync cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *CronTrigger) tick(ctx context.Context) {
	profiles, err := c.profiles.ListProfiles(ctx, true)
	if err != nil {
		c.logger.Error("Failed to list enabled sync profiles", zap.Error(err))
		return
	}
	if len(profiles) == 0 {
		c.logger.Debug("No enabled sync profiles")
		return
	}

	for _, p := range profiles {
		for _, flow := range c.config.Flows {
			if ctx.Err() != nil {
				return
			}
			res, err := c.runner.Run(ctx, p.ID, flow)
			if err != nil {
				c.logger.Warn("Scheduled sync run failed",
					zap.String("profile_id", p.ID.String()),
					zap.String("flow", string(flow)),
					zap.Error(err),
				)
				continue
			}
			c.logger.Debug("Scheduled sync run finished",
				zap.String("profile_id", p.ID.String()),
				zap.String("flow", string(flow)),
				zap.String("outcome", string(res.Outcome)),
			)
		}
	}
}
