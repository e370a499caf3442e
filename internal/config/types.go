package config

// Config is the process configuration. Broadcast settings chosen from the
// panel live in storage, not here.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	MTProto   MTProtoConfig   `json:"mtproto"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Debug     DebugConfig     `json:"debug,omitempty"`
}

// TelegramConfig configures the operator bot.
type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// LogChatID receives log lines when logging.telegram is enabled.
	LogChatID int64 `json:"log_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

// MTProtoConfig configures the user-account client.
type MTProtoConfig struct {
	APIID       int    `json:"api_id"`
	APIHash     string `json:"api_hash"`
	SessionPath string `json:"session_path"`
	// Phone is only used by init-session; empty means prompt.
	Phone string `json:"phone,omitempty"`
	// SendRate caps outgoing sends per second (default 1).
	SendRate float64 `json:"send_rate,omitempty"`
}

type BroadcastConfig struct {
	// DefaultIntervalMinutes seeds settings that have no interval yet.
	DefaultIntervalMinutes int `json:"default_interval_minutes"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
	// RingSize is the number of lines kept for the panel log viewer.
	RingSize int `json:"ring_size,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the document store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/relaybot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	Addr        string `json:"addr,omitempty"`
	Password    string `json:"password,omitempty"`
	DB          int    `json:"db,omitempty"`
	KeyPrefix   string `json:"key_prefix,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DebugConfig controls the optional HTTP server with /metrics, /healthz and pprof.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	// WriteTimeout defaults to 0 so /debug/pprof/profile works.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

const (
	DefaultSessionPath = "./session.json"
	DefaultDebugAddr   = "127.0.0.1:6060"
	DefaultPollTimeout = "10s"
)

// ApplyDefaults fills fields left empty by the file and the environment.
func (c *Config) ApplyDefaults() {
	if c.Telegram.PollTimeout == "" {
		c.Telegram.PollTimeout = DefaultPollTimeout
	}
	if c.MTProto.SessionPath == "" {
		c.MTProto.SessionPath = DefaultSessionPath
	}
	if c.MTProto.SendRate <= 0 {
		c.MTProto.SendRate = 1
	}
	if c.Broadcast.DefaultIntervalMinutes < 1 {
		c.Broadcast.DefaultIntervalMinutes = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.RingSize <= 0 {
		c.Logging.RingSize = 100
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Debug.Addr == "" {
		c.Debug.Addr = DefaultDebugAddr
	}
}
