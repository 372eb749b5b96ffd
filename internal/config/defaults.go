package config

import (
	"strings"
)

const (
	DefaultAppID        = 881100
	DefaultSchedule     = "1m"
	DefaultInfoURL      = "https://api.steamcmd.net/v1/info/%d"
	DefaultStatusAddr   = "127.0.0.1:8089"
	DefaultMaxMsgLength = 2000
)

// Default returns a config with every default applied. It is what an empty
// config file yields.
func Default() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills omitted fields with defaults in place.
func (c *Config) Normalize() {
	a := &c.App
	if a.ID == 0 {
		a.ID = DefaultAppID
	}
	a.PublicBranch = orDefault(a.PublicBranch, "public")
	a.BetaBranch = orDefault(a.BetaBranch, "noitabeta")
	a.ReleaseNotesFile = orDefault(a.ReleaseNotesFile, "_release_notes.txt")
	a.DataDir = orDefault(a.DataDir, "./branches")

	s := &c.Source
	s.InfoURL = orDefault(s.InfoURL, DefaultInfoURL)
	s.SteamCMDPath = orDefault(s.SteamCMDPath, "steamcmd")
	s.HTTPTimeout = orDefault(s.HTTPTimeout, "30s")
	s.DownloadTimeout = orDefault(s.DownloadTimeout, "0s")
	s.Login = orDefault(s.Login, "anonymous")

	sc := &c.Scheduler
	if sc.Enabled == nil {
		sc.Enabled = Bool(true)
	}
	if sc.RunOnStart == nil {
		sc.RunOnStart = Bool(true)
	}
	sc.Schedule = orDefault(sc.Schedule, DefaultSchedule)
	sc.PassTimeout = orDefault(sc.PassTimeout, "0s")

	c.Classifier.Policy = orDefault(c.Classifier.Policy, "all_matches")

	n := &c.Notifier
	if n.Enabled == nil {
		n.Enabled = Bool(true)
	}
	if n.Crosspost == nil {
		n.Crosspost = Bool(true)
	}
	n.Driver = strings.ToLower(orDefault(n.Driver, "discord"))
	if n.QueueSize <= 0 {
		n.QueueSize = 256
	}
	if n.RatePerSec <= 0 {
		n.RatePerSec = 2
	}
	if n.MaxMessageLength <= 0 {
		n.MaxMessageLength = DefaultMaxMsgLength
	}
	n.SendTimeout = orDefault(n.SendTimeout, "15s")

	st := &c.Storage
	st.Driver = strings.ToLower(orDefault(st.Driver, "file"))
	if st.Path == "" {
		switch st.Driver {
		case "sqlite", "sqlite3":
			st.Path = "./data/branchwatch.db"
		case "memory":
		default:
			st.Path = "./data/branchwatch"
		}
	}
	st.BusyTimeout = orDefault(st.BusyTimeout, "1s")

	l := &c.Logging
	l.Level = strings.ToUpper(orDefault(l.Level, "INFO"))
	if l.Console == nil {
		l.Console = Bool(true)
	}
	if l.File.Enabled {
		l.File.Path = orDefault(l.File.Path, "./branchwatch.log")
	}

	c.Status.Addr = orDefault(c.Status.Addr, DefaultStatusAddr)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
