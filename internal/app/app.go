package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"branchwatch/internal/config"
	"branchwatch/internal/eventbus"
	"branchwatch/internal/notifier"
	"branchwatch/internal/pipeline"
	"branchwatch/internal/snapshot"
	"branchwatch/internal/source"
	"branchwatch/internal/source/steam"
	"branchwatch/internal/status"
	"branchwatch/internal/storage"
	"branchwatch/internal/task/scheduler"
	kit "branchwatch/internal/transport"
	"branchwatch/internal/transport/console"
	"branchwatch/internal/transport/discord"
	"branchwatch/internal/transport/telegram"
	logx "branchwatch/pkg/logx"
	"branchwatch/pkg/systemd"
)

const (
	pollJob = "poll"

	stopTimeout  = 5 * time.Second
	drainTimeout = time.Minute
)

// Options tweak how New assembles the app.
type Options struct {
	// DryRun detects changes without downloading and prints notifications
	// instead of sending them. Branch state goes to an in-memory copy of the
	// configured store, so a dry run never advances the real one.
	DryRun bool
	// Out receives console transport output. Defaults to stdout.
	Out io.Writer
	// Source and Adapter replace the steam client and the configured
	// transport when set.
	Source  source.Source
	Adapter kit.Adapter
}

type App struct {
	cfgm *config.ConfigManager
	boot *config.Config
	opts Options

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	ring    *snapshot.Ring
	adapter kit.Adapter

	notif  *notifier.Service
	pipe   *pipeline.Pipeline
	passes *passRunner
	sched  *scheduler.Service
	status *status.Server

	// notifCtx outlives the run context so Stop can drain the queue.
	notifCtx context.Context
}

func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	logs, log := logx.New(mapLogConfig(cfg))
	a := &App{cfgm: cfgm, boot: cfg, opts: opts, logs: logs, log: log.With(logx.String("comp", "app")), bus: eventbus.New()}
	if err := a.build(cfg, log); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, log logx.Logger) error {
	store, err := a.openStore(cfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	a.store = store

	ring, err := snapshot.NewRing(cfg.App.DataDir, log.With(logx.String("comp", "snapshot")))
	if err != nil {
		return err
	}
	a.ring = ring

	src := a.opts.Source
	if src == nil {
		sc, err := mapSourceConfig(cfg)
		if err != nil {
			return err
		}
		src = steam.New(sc, log.With(logx.String("comp", "steam")))
	}

	ad, err := a.newAdapter(cfg, log)
	if err != nil {
		return err
	}
	a.adapter = ad

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return err
	}
	a.notif = notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), a.bus)

	cls, err := mapClassifier(cfg)
	if err != nil {
		return err
	}
	a.pipe = pipeline.New(mapPipelineConfig(cfg, a.opts.DryRun), src, store, ring, a.notif,
		log.With(logx.String("comp", "pipeline")),
		pipeline.WithBus(a.bus), pipeline.WithClassifier(cls))

	plan, err := mapSchedulerConfig(cfg)
	if err != nil {
		return err
	}
	a.passes = newPassRunner(a.pipe, plan.timeout, log.With(logx.String("comp", "passes")))
	a.sched = scheduler.New(plan.cfg, log.With(logx.String("comp", "scheduler")))
	if err := a.sched.Register(pollJob, plan.schedule, 0, a.passes.Run); err != nil {
		return fmt.Errorf("scheduler.schedule: %w", err)
	}

	a.status = status.New(mapStatusConfig(cfg), status.Deps{
		Store:         store,
		Passes:        a.passes,
		Notifications: a.notif,
		Schedules:     a.sched,
	}, log)
	return nil
}

func (a *App) openStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !a.opts.DryRun {
		st, err := storage.Open(sc, log)
		if err != nil {
			return nil, err
		}
		log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
		return st, nil
	}
	return seedMemory(sc, log), nil
}

// seedMemory copies branch state from the configured store into a memory
// store. A store that cannot be read yields an empty copy.
func seedMemory(sc storage.Config, log logx.Logger) storage.Store {
	mem := storage.NewMemory()
	src, err := storage.Open(sc, log)
	if err != nil {
		log.Warn("dry run starts without stored state", logx.Err(err))
		return mem
	}
	defer src.Close()

	ctx := context.Background()
	all, err := src.ListBranches(ctx)
	if err != nil {
		log.Warn("dry run starts without stored state", logx.Err(err))
		return mem
	}
	for name, st := range all {
		_ = mem.PutBranch(ctx, name, st)
	}
	log.Debug("dry run seeded from store", logx.Int("branches", len(all)))
	return mem
}

func (a *App) newAdapter(cfg *config.Config, log logx.Logger) (kit.Adapter, error) {
	if a.opts.Adapter != nil {
		return a.opts.Adapter, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Notifier.Driver))
	if a.opts.DryRun {
		driver = "console"
	}
	switch driver {
	case "discord":
		d := cfg.Discord
		return discord.New(discord.Config{
			Token:       d.Token,
			ChannelID:   d.ChannelID,
			GuildID:     d.GuildID,
			ChannelName: d.ChannelName,
			Color:       discordBlurple,
		}, log.With(logx.String("comp", "discord")))
	case "telegram":
		t := cfg.Telegram
		return telegram.New(telegram.Config{
			Token:            t.Token,
			ChatID:           t.ChatID,
			ThreadID:         t.ThreadID,
			CrosspostChatIDs: t.CrosspostChatIDs,
		}, log.With(logx.String("comp", "telegram")))
	case "console":
		return console.New(a.opts.Out, log.With(logx.String("comp", "console"))), nil
	default:
		return nil, fmt.Errorf("unknown notifier.driver: %s", cfg.Notifier.Driver)
	}
}

// Run starts the scheduler, status server and config watcher and blocks
// until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	a.notifCtx = context.WithoutCancel(ctx)
	a.passes.bind(gctx)
	a.notif.Start(a.notifCtx)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validateReload)
	sub := a.cfgm.Subscribe(8)

	g.Go(func() error {
		a.reloadLoop(gctx, sub)
		return nil
	})
	g.Go(func() error { return a.cfgm.Watch(gctx) })
	g.Go(func() error { return a.status.Run(gctx) })
	g.Go(func() error { return systemd.Watchdog(gctx, a.log) })
	g.Go(func() error {
		a.logEvents(gctx)
		return nil
	})

	a.sched.Start(gctx)
	if plan, err := mapSchedulerConfig(a.cfgm.Get()); err == nil && plan.runOnStart {
		g.Go(func() error {
			if err := a.passes.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("startup pass failed", logx.Err(err))
			}
			return nil
		})
	}

	systemd.Ready(a.log)
	a.log.Info("branchwatch started", config.SafeFields(a.cfgm.Get())...)

	<-gctx.Done()
	systemd.Stopping(a.log)
	a.log.Info("stopping")

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	a.sched.Stop(stopCtx)
	a.notif.Stop(stopCtx)

	err := g.Wait()
	a.log.Info("stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Once runs a single pass and waits for its notifications to go out.
func (a *App) Once(ctx context.Context) (pipeline.Report, error) {
	a.notifCtx = context.WithoutCancel(ctx)
	a.passes.bind(ctx)
	a.notif.Start(a.notifCtx)

	rep, _, err := a.passes.Trigger(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	a.notif.Stop(drainCtx)
	return rep, err
}

// Close releases the transport, the store and log sinks.
func (a *App) Close() error {
	var errs []error
	if a.adapter != nil {
		errs = append(errs, a.adapter.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}

// logEvents mirrors bus events into the debug log.
func (a *App) logEvents(ctx context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}
