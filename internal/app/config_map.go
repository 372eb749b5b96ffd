package app

import (
	"fmt"
	"strings"
	"time"

	"branchwatch/internal/config"
	"branchwatch/internal/notifier"
	"branchwatch/internal/pipeline"
	"branchwatch/internal/releasenotes"
	"branchwatch/internal/source/steam"
	"branchwatch/internal/status"
	"branchwatch/internal/storage"
	"branchwatch/internal/task/scheduler"
	logx "branchwatch/pkg/logx"
)

// discordBlurple is the embed colour for branch summaries.
const discordBlurple = 0x5865F2

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: config.BoolOr(cfg.Logging.Console, true),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "file", "memory":
		return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path)}, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapSourceConfig(cfg *config.Config) (steam.Config, error) {
	s := cfg.Source
	httpTimeout, err := config.ParseDurationField("source.http_timeout", s.HTTPTimeout)
	if err != nil {
		return steam.Config{}, err
	}
	dlTimeout, err := config.ParseDurationField("source.download_timeout", s.DownloadTimeout)
	if err != nil {
		return steam.Config{}, err
	}
	return steam.Config{
		InfoURL:         s.InfoURL,
		SteamCMDPath:    s.SteamCMDPath,
		HTTPTimeout:     httpTimeout,
		DownloadTimeout: dlTimeout,
		Login:           s.Login,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	timeout, err := config.ParseDurationField("notifier.send_timeout", n.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:     config.BoolOr(n.Enabled, true),
		QueueSize:   n.QueueSize,
		RatePerSec:  n.RatePerSec,
		Crosspost:   config.BoolOr(n.Crosspost, true),
		SendTimeout: timeout,
	}, nil
}

func mapPipelineConfig(cfg *config.Config, skipDownload bool) pipeline.Config {
	a := cfg.App
	return pipeline.Config{
		AppID:            a.ID,
		PublicBranch:     a.PublicBranch,
		BetaBranch:       a.BetaBranch,
		NotesFile:        a.ReleaseNotesFile,
		NotifyOnBaseline: a.NotifyOnBaseline,
		MaxMessageLength: cfg.Notifier.MaxMessageLength,
		Validate:         a.ValidateFiles,
		SkipDownload:     skipDownload,
	}
}

// mapClassifier builds the classifier. Configured rules replace the
// built-in ones entirely.
func mapClassifier(cfg *config.Config) (*releasenotes.Classifier, error) {
	policy, err := releasenotes.ParseMatchPolicy(cfg.Classifier.Policy)
	if err != nil {
		return nil, fmt.Errorf("classifier.policy: %w", err)
	}
	var rules []releasenotes.Rule
	for _, r := range cfg.Classifier.Rules {
		rules = append(rules, releasenotes.Rule{Prefix: r.Prefix, Category: r.Category})
	}
	return releasenotes.NewClassifier(rules, policy), nil
}

type schedulePlan struct {
	cfg        scheduler.Config
	schedule   string
	runOnStart bool
	timeout    time.Duration
}

func mapSchedulerConfig(cfg *config.Config) (schedulePlan, error) {
	s := cfg.Scheduler
	timeout, err := config.ParseDurationField("scheduler.pass_timeout", s.PassTimeout)
	if err != nil {
		return schedulePlan{}, err
	}
	return schedulePlan{
		cfg:        scheduler.Config{Enabled: config.BoolOr(s.Enabled, true), Timezone: s.Timezone},
		schedule:   s.Schedule,
		runOnStart: config.BoolOr(s.RunOnStart, true),
		timeout:    timeout,
	}, nil
}

func mapStatusConfig(cfg *config.Config) status.Config {
	return status.Config{Enabled: cfg.Status.Enabled, Addr: cfg.Status.Addr, Pprof: cfg.Status.Pprof}
}
