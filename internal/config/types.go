package config

// Config is the full on-disk configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Unknown fields are rejected at load time so typos fail loudly.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Telegram TelegramConfig `json:"telegram"`
	Storage  *StorageConfig `json:"storage,omitempty"`

	Translation TranslationConfig `json:"translation"`
	Routing     RoutingConfig     `json:"routing"`
	Webhooks    WebhooksConfig    `json:"webhooks"`
	Delivery    DeliveryConfig    `json:"delivery"`
	Planner     PlannerConfig     `json:"planner,omitempty"`
	Router      RouterConfig      `json:"router,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./fabrica.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type TranslationConfig struct {
	BaseURL    string `json:"base_url"`
	APIKey     string `json:"api_key"` // do not log
	Model      string `json:"model"`
	MaxTokens  int    `json:"max_tokens,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

type RoutingConfig struct {
	DefaultLanguage string `json:"default_language"`
	// ChannelLanguages overrides the default language per channel ID.
	ChannelLanguages map[string]string `json:"channel_languages,omitempty"`
}

type WebhooksConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default ":8085"

	GitHubSecret string `json:"github_secret,omitempty"` // do not log
	PlaneSecret  string `json:"plane_secret,omitempty"`  // do not log

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
}

// DeliveryConfig tunes retries and the per-destination-class gates.
type DeliveryConfig struct {
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	RetryJitter   float64 `json:"retry_jitter,omitempty"`

	BroadcastConcurrency int `json:"broadcast_concurrency,omitempty"`
	BroadcastRatePerSec  int `json:"broadcast_rate_per_sec,omitempty"`
	DMConcurrency        int `json:"dm_concurrency,omitempty"`
	DMRatePerSec         int `json:"dm_rate_per_sec,omitempty"`

	DedupTTL string `json:"dedup_ttl,omitempty"`
	// DedupPruneSchedule is a cron expression for the nightly ledger prune.
	DedupPruneSchedule string `json:"dedup_prune_schedule,omitempty"`
}

type PlannerConfig struct {
	// TransparentDetail includes the served languages in transparent-mode
	// channel notices instead of a bare indicator.
	TransparentDetail bool `json:"transparent_detail,omitempty"`
	// SimilarityGuard in (0,1]; 0 keeps the default.
	SimilarityGuard float64 `json:"similarity_guard,omitempty"`
}

type RouterConfig struct {
	// HandleTimeout bounds one inbound payload end to end.
	HandleTimeout string `json:"handle_timeout,omitempty"`
}
