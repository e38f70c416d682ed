package config

import (
	"os"
	"time"
)

// TriageConfig controls classification and batching
type TriageConfig struct {
	AutoDecideThreshold  float64
	BatchSize            int
	FetchBatchSize       int
	SmartBatching        bool
	PreprocessNextBatch  bool
	WorkerJoinTimeout    time.Duration
	LearnSubjectKeywords int
	SnippetSize          int
	ImportantKeywords    []string
	MarketingKeywords    []string
}

// LLMConfig represents the configuration for the LLM provider
type LLMConfig struct {
	Provider    string
	Timeout     time.Duration
	ContextSize int
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// StoreConfig selects the preference store backend
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// GmailConfig represents the Gmail mail client settings
type GmailConfig struct {
	User              string
	CredentialsPath   string
	TokenPath         string
	RequestsPerSecond float64
	Concurrency       int
	RevisitLabel      string
	ActionLabel       string
	OptOutLabel       string
}

// OptOutConfig controls the opt-out ledger and erasure delivery
type OptOutConfig struct {
	LedgerPath  string
	RepeatAfter time.Duration
	Delivery    string
	SMTPAddress string
	SMTPFrom    string
}

// UnsubscribeConfig controls automatic unsubscription on discard
type UnsubscribeConfig struct {
	Enabled            bool
	Timeout            time.Duration
	WhitelistedDomains []string
}

// TTSConfig controls spoken notifications
type TTSConfig struct {
	Enabled     bool
	Provider    string
	Command     string
	Player      string
	APIKey      string
	VoiceID     string
	StagePause  time.Duration
	DetailPause time.Duration
}

// MetricsConfig controls the metrics endpoint
type MetricsConfig struct {
	ListenAddress string
}

// GetTriage returns the triage configuration
func (c *Config) GetTriage() TriageConfig {
	batch := c.GetInt("triage.batch_size")
	if batch <= 0 {
		batch = 5
	}
	fetch := c.GetInt("triage.fetch_batch_size")
	if fetch < batch {
		fetch = batch
	}
	return TriageConfig{
		AutoDecideThreshold:  c.GetFloat64("triage.auto_decide_threshold"),
		BatchSize:            batch,
		FetchBatchSize:       fetch,
		SmartBatching:        c.GetBool("triage.smart_batching"),
		PreprocessNextBatch:  c.GetBool("triage.preprocess_next_batch"),
		WorkerJoinTimeout:    c.durationOr("triage.worker_join_timeout", 2*time.Second),
		LearnSubjectKeywords: c.GetInt("triage.learn_subject_keywords"),
		SnippetSize:          c.GetInt("triage.snippet_size"),
		ImportantKeywords:    c.GetStringSlice("triage.important_keywords"),
		MarketingKeywords:    c.GetStringSlice("triage.marketing_keywords"),
	}
}

// GetLLM returns the LLM configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider:    c.GetString("llm.provider"),
		Timeout:     c.durationOr("llm.timeout", 20*time.Second),
		ContextSize: c.GetInt("llm.context_size"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetStore returns the preference store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetPath("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}

// GetGmail returns the Gmail configuration
func (c *Config) GetGmail() GmailConfig {
	return GmailConfig{
		User:              c.GetString("gmail.user"),
		CredentialsPath:   c.GetPath("gmail.credentials_path"),
		TokenPath:         c.GetPath("gmail.token_path"),
		RequestsPerSecond: c.GetFloat64("gmail.requests_per_second"),
		Concurrency:       c.GetInt("gmail.concurrency"),
		RevisitLabel:      c.GetString("gmail.labels.revisit"),
		ActionLabel:       c.GetString("gmail.labels.action_needed"),
		OptOutLabel:       c.GetString("gmail.labels.opt_out"),
	}
}

// GetOptOut returns the opt-out configuration
func (c *Config) GetOptOut() OptOutConfig {
	return OptOutConfig{
		LedgerPath:  c.GetPath("optout.ledger_path"),
		RepeatAfter: c.durationOr("optout.repeat_after", 7*24*time.Hour),
		Delivery:    c.GetString("optout.delivery"),
		SMTPAddress: c.GetString("optout.smtp.address"),
		SMTPFrom:    c.GetString("optout.smtp.from"),
	}
}

// GetUnsubscribe returns the unsubscribe configuration
func (c *Config) GetUnsubscribe() UnsubscribeConfig {
	return UnsubscribeConfig{
		Enabled:            c.GetBool("unsubscribe.enabled"),
		Timeout:            c.durationOr("unsubscribe.timeout", 10*time.Second),
		WhitelistedDomains: c.GetStringSlice("unsubscribe.whitelisted_domains"),
	}
}

// GetTTS returns the speech configuration
func (c *Config) GetTTS() TTSConfig {
	return TTSConfig{
		Enabled:     c.GetBool("tts.enabled"),
		Provider:    c.GetString("tts.provider"),
		Command:     c.GetString("tts.command"),
		Player:      c.GetString("tts.player"),
		APIKey:      c.GetString("tts.api_key"),
		VoiceID:     c.GetString("tts.voice_id"),
		StagePause:  c.durationOr("tts.stage_pause", 500*time.Millisecond),
		DetailPause: c.durationOr("tts.detail_pause", 300*time.Millisecond),
	}
}

// GetMetrics returns the metrics configuration
func (c *Config) GetMetrics() MetricsConfig {
	return MetricsConfig{
		ListenAddress: c.GetString("metrics.listen_address"),
	}
}

func (c *Config) durationOr(key string, fallback time.Duration) time.Duration {
	d, err := c.GetDuration(key)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func expandPath(p string) string {
	return os.ExpandEnv(p)
}
