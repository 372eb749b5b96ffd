package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("30s", "1m"). Flags that default to on are pointers so an explicit false
// is distinguishable from an omitted key.
type Config struct {
	App        AppConfig        `json:"app"`
	Source     SourceConfig     `json:"source"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Classifier ClassifierConfig `json:"classifier"`
	Notifier   NotifierConfig   `json:"notifier"`
	Discord    DiscordConfig    `json:"discord"`
	Telegram   TelegramConfig   `json:"telegram"`
	Storage    StorageConfig    `json:"storage"`
	Logging    LoggingConfig    `json:"logging"`
	Status     StatusConfig     `json:"status"`
}

// AppConfig describes the watched application.
type AppConfig struct {
	ID               int    `json:"id"`
	PublicBranch     string `json:"public_branch,omitempty"`
	BetaBranch       string `json:"beta_branch,omitempty"`
	ReleaseNotesFile string `json:"release_notes_file,omitempty"`
	// DataDir holds the snapshot ring (one directory per branch).
	DataDir          string `json:"data_dir,omitempty"`
	NotifyOnBaseline bool   `json:"notify_on_baseline,omitempty"`
	ValidateFiles    bool   `json:"validate,omitempty"`
}

type SourceConfig struct {
	// InfoURL is a fmt template taking the app id.
	InfoURL         string `json:"info_url,omitempty"`
	SteamCMDPath    string `json:"steamcmd_path,omitempty"`
	HTTPTimeout     string `json:"http_timeout,omitempty"`
	DownloadTimeout string `json:"download_timeout,omitempty"`
	Login           string `json:"login,omitempty"`
}

type SchedulerConfig struct {
	Enabled    *bool  `json:"enabled,omitempty"`
	Schedule   string `json:"schedule,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	RunOnStart *bool  `json:"run_on_start,omitempty"`
	// PassTimeout bounds one polling pass; "0s" disables it.
	PassTimeout string `json:"pass_timeout,omitempty"`
}

type ClassifierConfig struct {
	// Policy is all_matches or first_match.
	Policy string `json:"policy,omitempty"`
	// Rules replace the built-in prefix rules when non-empty.
	Rules []RuleConfig `json:"rules,omitempty"`
}

type RuleConfig struct {
	Prefix   string `json:"prefix"`
	Category string `json:"category"`
}

type NotifierConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	// Driver is discord, telegram or console.
	Driver           string  `json:"driver,omitempty"`
	QueueSize        int     `json:"queue_size,omitempty"`
	RatePerSec       float64 `json:"rate_per_sec,omitempty"`
	MaxMessageLength int     `json:"max_message_length,omitempty"`
	Crosspost        *bool   `json:"crosspost,omitempty"`
	SendTimeout      string  `json:"send_timeout,omitempty"`
}

type DiscordConfig struct {
	Token       string `json:"token,omitempty"`
	ChannelID   string `json:"channel_id,omitempty"`
	GuildID     string `json:"guild_id,omitempty"`
	ChannelName string `json:"channel_name,omitempty"`
}

type TelegramConfig struct {
	Token            string  `json:"token,omitempty"`
	ChatID           int64   `json:"chat_id,omitempty"`
	ThreadID         int     `json:"thread_id,omitempty"`
	CrosspostChatIDs []int64 `json:"crosspost_chat_ids,omitempty"`
}

// StorageConfig selects the branch state store.
//
//	"storage": { "driver": "sqlite", "path": "./data/branchwatch.db" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StatusConfig controls the read-only status HTTP server. Keep it on
// loopback; it has no authentication.
type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	// Pprof mounts net/http/pprof under /debug/pprof/.
	Pprof bool `json:"pprof,omitempty"`
}

// BoolOr dereferences p, returning def when p is nil.
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }
