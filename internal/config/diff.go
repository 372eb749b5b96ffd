package config

import (
	"reflect"

	logx "branchwatch/pkg/logx"
)

// ChangedSections lists the top-level sections that differ between two
// configs, in declaration order.
func ChangedSections(oldCfg, newCfg *Config) []string {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	ov := reflect.ValueOf(*oldCfg)
	nv := reflect.ValueOf(*newCfg)
	t := ov.Type()

	var out []string
	for i := 0; i < t.NumField(); i++ {
		if !reflect.DeepEqual(ov.Field(i).Interface(), nv.Field(i).Interface()) {
			out = append(out, jsonName(t.Field(i)))
		}
	}
	return out
}

// RestartRequired reports sections that hot reload cannot apply. Notifier
// rate, crosspost and message length apply live; a driver change needs a
// restart and is checked by the caller.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "app", "source", "discord", "telegram", "storage", "status":
			out = append(out, s)
		}
	}
	return out
}

// SafeFields renders a changed config for logs. Tokens are reported only as
// set or unset.
func SafeFields(cfg *Config) []logx.Field {
	if cfg == nil {
		return nil
	}
	return []logx.Field{
		logx.Int("app.id", cfg.App.ID),
		logx.String("scheduler.schedule", cfg.Scheduler.Schedule),
		logx.String("classifier.policy", cfg.Classifier.Policy),
		logx.Int("classifier.rules", len(cfg.Classifier.Rules)),
		logx.String("notifier.driver", cfg.Notifier.Driver),
		logx.Bool("discord.token_set", cfg.Discord.Token != ""),
		logx.Bool("telegram.token_set", cfg.Telegram.Token != ""),
		logx.String("logging.level", cfg.Logging.Level),
	}
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			tag = tag[:i]
			break
		}
	}
	if tag == "" {
		return f.Name
	}
	return tag
}
