package config

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"branchwatch/internal/releasenotes"
	"branchwatch/internal/task/scheduler"
	logx "branchwatch/pkg/logx"
)

var (
	isDuration = validation.By(func(v interface{}) error {
		s, _ := v.(string)
		_, err := ParseDurationField("value", s)
		return err
	})
	isSchedule = validation.By(func(v interface{}) error {
		s, _ := v.(string)
		_, err := scheduler.ParseSchedule(s)
		return err
	})
	isMatchPolicy = validation.By(func(v interface{}) error {
		s, _ := v.(string)
		_, err := releasenotes.ParseMatchPolicy(s)
		return err
	})
	isLevel = validation.By(func(v interface{}) error {
		s, _ := v.(string)
		if _, ok := logx.ParseLevel(s); !ok {
			return fmt.Errorf("unknown level %q", s)
		}
		return nil
	})
	isBranchName = validation.By(func(v interface{}) error {
		s, _ := v.(string)
		if strings.ContainsAny(s, `/\`) || s == "." || s == ".." {
			return errors.New("must be a plain branch name")
		}
		return nil
	})
)

// Validate checks a normalized config.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.App),
		validation.Field(&c.Source),
		validation.Field(&c.Scheduler),
		validation.Field(&c.Classifier),
		validation.Field(&c.Notifier),
		validation.Field(&c.Discord, validation.When(c.notifierUses("discord"), validation.By(func(interface{}) error {
			return c.Discord.validateRequired()
		}))),
		validation.Field(&c.Telegram, validation.When(c.notifierUses("telegram"), validation.By(func(interface{}) error {
			return c.Telegram.validateRequired()
		}))),
		validation.Field(&c.Storage),
		validation.Field(&c.Logging),
		validation.Field(&c.Status),
	)
}

func (c *Config) notifierUses(driver string) bool {
	return BoolOr(c.Notifier.Enabled, true) && c.Notifier.Driver == driver
}

func (a AppConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.ID, validation.Required, validation.Min(1)),
		validation.Field(&a.PublicBranch, validation.Required, isBranchName),
		validation.Field(&a.BetaBranch, validation.Required, isBranchName),
		validation.Field(&a.ReleaseNotesFile, validation.Required),
		validation.Field(&a.DataDir, validation.Required),
	)
}

func (s SourceConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.InfoURL, validation.Required, validation.By(func(v interface{}) error {
			if !strings.Contains(v.(string), "%d") {
				return errors.New("must contain %d for the app id")
			}
			return nil
		})),
		validation.Field(&s.SteamCMDPath, validation.Required),
		validation.Field(&s.HTTPTimeout, isDuration),
		validation.Field(&s.DownloadTimeout, isDuration),
	)
}

func (s SchedulerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Schedule, validation.Required, isSchedule),
		validation.Field(&s.PassTimeout, isDuration),
	)
}

func (c ClassifierConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Policy, isMatchPolicy),
		validation.Field(&c.Rules),
	)
}

func (r RuleConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Prefix, validation.Required),
		validation.Field(&r.Category, validation.Required, validation.NotIn(releasenotes.General).Error("GENERAL is reserved")),
	)
}

func (n NotifierConfig) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Driver, validation.Required, validation.In("discord", "telegram", "console")),
		validation.Field(&n.QueueSize, validation.Min(1)),
		validation.Field(&n.RatePerSec, validation.Min(0.0)),
		validation.Field(&n.MaxMessageLength, validation.Min(1)),
		validation.Field(&n.SendTimeout, isDuration),
	)
}

func (d DiscordConfig) validateRequired() error {
	if strings.TrimSpace(d.Token) == "" {
		return errors.New("token is required")
	}
	if d.ChannelID == "" && (d.GuildID == "" || d.ChannelName == "") {
		return errors.New("channel_id or guild_id with channel_name is required")
	}
	return nil
}

func (t TelegramConfig) validateRequired() error {
	if strings.TrimSpace(t.Token) == "" {
		return errors.New("token is required")
	}
	if t.ChatID == 0 {
		return errors.New("chat_id is required")
	}
	return nil
}

func (s StorageConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Driver, validation.In("file", "sqlite", "sqlite3", "memory")),
		validation.Field(&s.Path, validation.When(s.Driver != "memory", validation.Required)),
		validation.Field(&s.BusyTimeout, isDuration),
	)
}

func (l LoggingConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, isLevel),
	)
}

func (s StatusConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Addr, validation.When(s.Enabled, validation.Required)),
	)
}
