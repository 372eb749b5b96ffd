package app

import (
	"context"
	"strings"

	"branchwatch/internal/config"
	"branchwatch/internal/eventbus"
	logx "branchwatch/pkg/logx"
	"branchwatch/pkg/systemd"
)

// validateReload rejects configs that would fail to apply after the built-in
// validation already passed.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	if _, err := mapClassifier(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	_, err := mapSchedulerConfig(cfg)
	return err
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts; only the newest config matters.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			if next == nil {
				continue
			}
			a.applyConfig(ctx, last, next)
			last = next
		}
	}
}

// applyConfig pushes the hot-reloadable parts of next into running
// components. Sections that need a restart keep their boot values.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	changed := config.ChangedSections(prev, next)
	if len(changed) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	systemd.Reloading(a.log)
	defer systemd.Ready(a.log)

	if restart := config.RestartRequired(changed); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}
	if !strings.EqualFold(next.Notifier.Driver, a.boot.Notifier.Driver) {
		a.log.Warn("notifier.driver changed; restart required", logx.String("driver", next.Notifier.Driver))
	}

	a.logs.Apply(mapLogConfig(next))

	live := *next
	live.App = a.boot.App
	if cls, err := mapClassifier(&live); err != nil {
		a.log.Warn("invalid classifier config; keeping previous", logx.Err(err))
	} else {
		a.pipe.Apply(mapPipelineConfig(&live, a.opts.DryRun), cls)
	}

	if ncfg, err := mapNotifierConfig(&live); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
		if ncfg.Enabled && a.notifCtx != nil {
			a.notif.Start(a.notifCtx)
		}
	}

	if plan, err := mapSchedulerConfig(&live); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.applySchedule(ctx, plan)
	}

	eventbus.Emit(a.bus, eventbus.ConfigReloaded, changed)
	a.log.Info("config applied", logx.String("changed", strings.Join(changed, ",")))
}

func (a *App) applySchedule(ctx context.Context, plan schedulePlan) {
	a.passes.setTimeout(plan.timeout)

	wasEnabled := a.sched.Enabled()
	a.sched.Apply(plan.cfg)
	if err := a.sched.Reschedule(pollJob, plan.schedule); err != nil {
		a.log.Warn("schedule not changed", logx.String("schedule", plan.schedule), logx.Err(err))
	}
	switch {
	case wasEnabled && !plan.cfg.Enabled:
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
		a.sched.Stop(stopCtx)
		cancel()
	case !wasEnabled && plan.cfg.Enabled:
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}
}
