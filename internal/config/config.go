package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance from the default search paths
func New() (*Config, error) {
	return NewWithFile("")
}

// NewWithFile creates a configuration instance. An empty path searches the
// default locations; a missing file there is not an error.
func NewWithFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/easemail/")
		v.AddConfigPath("$HOME/.easemail")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("EASEMAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Triage defaults
	v.SetDefault("triage.auto_decide_threshold", 0.85)
	v.SetDefault("triage.batch_size", 5)
	v.SetDefault("triage.fetch_batch_size", 20)
	v.SetDefault("triage.smart_batching", true)
	v.SetDefault("triage.preprocess_next_batch", true)
	v.SetDefault("triage.worker_join_timeout", "2s")
	v.SetDefault("triage.learn_subject_keywords", 3)
	v.SetDefault("triage.snippet_size", 2048)
	v.SetDefault("triage.important_keywords", []string{
		"urgent", "important", "action required", "deadline",
		"invoice", "payment", "security", "verification",
	})
	v.SetDefault("triage.marketing_keywords", []string{
		"unsubscribe", "marketing", "newsletter", "promotion",
		"sale", "offer", "deal", "discount", "limited time",
	})

	// LLM provider defaults; an empty provider disables the model tier
	v.SetDefault("llm.provider", "")
	v.SetDefault("llm.timeout", "20s")
	v.SetDefault("llm.context_size", 10)

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 500)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_body_size", 2048)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 500)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_body_size", 2048)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model_name", "gpt-4")
	v.SetDefault("openai.max_tokens", 500)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_body_size", 2048)

	// Preference store defaults
	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.sqlite_path", "$HOME/.easemail/preferences.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/easemail?parseTime=true")

	// Gmail defaults
	v.SetDefault("gmail.user", "me")
	v.SetDefault("gmail.credentials_path", "$HOME/.easemail/credentials.json")
	v.SetDefault("gmail.token_path", "$HOME/.easemail/token.json")
	v.SetDefault("gmail.requests_per_second", 10)
	v.SetDefault("gmail.concurrency", 4)
	v.SetDefault("gmail.labels.revisit", "TRIAGE_REVISIT")
	v.SetDefault("gmail.labels.action_needed", "TRIAGE_ACTION_NEEDED")
	v.SetDefault("gmail.labels.opt_out", "TRIAGE_OPT_OUT")

	// Opt-out defaults
	v.SetDefault("optout.ledger_path", "$HOME/.easemail/opt_out_tracking.json")
	v.SetDefault("optout.repeat_after", "168h")
	v.SetDefault("optout.delivery", "gmail")
	v.SetDefault("optout.smtp.address", "localhost:25")
	v.SetDefault("optout.smtp.from", "")

	// Unsubscribe defaults
	v.SetDefault("unsubscribe.enabled", true)
	v.SetDefault("unsubscribe.timeout", "10s")
	v.SetDefault("unsubscribe.whitelisted_domains", []string{"github.com", "stackoverflow.com", "medium.com"})

	// Speech defaults
	v.SetDefault("tts.enabled", true)
	v.SetDefault("tts.provider", "console")
	v.SetDefault("tts.command", "espeak")
	v.SetDefault("tts.player", "mpg123 -q -")
	v.SetDefault("tts.api_key", "")
	v.SetDefault("tts.voice_id", "Z9hrfEHGU3dykHntWvIY")
	v.SetDefault("tts.stage_pause", "500ms")
	v.SetDefault("tts.detail_pause", "300ms")

	// Metrics defaults
	v.SetDefault("metrics.listen_address", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(c.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

// GetPath gets a filesystem path with environment variables expanded
func (c *Config) GetPath(key string) string {
	return expandPath(c.v.GetString(key))
}

// Set overrides a value, used for command line flags
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
