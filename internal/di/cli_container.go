package di

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Cfomodz/easemail/internal/config"
	"github.com/Cfomodz/easemail/internal/logging"
)

// CLIFlags contains the command line flags shared by every subcommand.
// Zero values leave the configured setting alone.
type CLIFlags struct {
	ConfigFile string
	Verbose    bool
	JSONLog    bool

	Provider  string
	BatchSize int
	FetchSize int
	Threshold float64
	NoTTS     bool
	Store     string
}

// RegisterFlags binds CLIFlags to the persistent flags of cmd
func RegisterFlags(cmd *cobra.Command) *CLIFlags {
	flags := &CLIFlags{}
	fs := cmd.PersistentFlags()

	fs.StringVarP(&flags.ConfigFile, "config", "c", "", "Path to config file")
	fs.BoolVarP(&flags.Verbose, "verbose", "v", false, "Enable verbose logging and details")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")

	fs.StringVar(&flags.Provider, "provider", "", "LLM provider (openai, gemini, bedrock, none)")
	fs.IntVar(&flags.BatchSize, "batch-size", 0, "Items reviewed per chunk")
	fs.IntVar(&flags.FetchSize, "fetch-size", 0, "Items fetched per mailbox request")
	fs.Float64Var(&flags.Threshold, "threshold", 0, "Confidence needed for batch confirmation")
	fs.BoolVar(&flags.NoTTS, "no-tts", false, "Disable spoken notifications")
	fs.StringVar(&flags.Store, "store", "", "Preference store (sqlite, mysql, memory)")

	return flags
}

// LoadConfig reads the config file and applies flag overrides
func LoadConfig(flags *CLIFlags) (*config.Config, error) {
	cfg, err := config.NewWithFile(flags.ConfigFile)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, flags)
	return cfg, nil
}

func applyFlags(cfg *config.Config, flags *CLIFlags) {
	switch flags.Provider {
	case "":
	case "none":
		cfg.Set("llm.provider", "")
	default:
		cfg.Set("llm.provider", flags.Provider)
	}
	if flags.BatchSize > 0 {
		cfg.Set("triage.batch_size", flags.BatchSize)
	}
	if flags.FetchSize > 0 {
		cfg.Set("triage.fetch_batch_size", flags.FetchSize)
	}
	if flags.Threshold > 0 {
		cfg.Set("triage.auto_decide_threshold", flags.Threshold)
	}
	if flags.NoTTS {
		cfg.Set("tts.enabled", false)
	}
	if flags.Store != "" {
		cfg.Set("store.type", flags.Store)
	}
	if flags.Verbose {
		cfg.Set("logging.level", "debug")
	}
	if flags.JSONLog {
		cfg.Set("logging.format", "json")
	}
}

// NewLogger builds the logger and reports which config file was used
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.InitLogger(cfg)
	if err != nil {
		return nil, err
	}
	if used := cfg.GetViper().ConfigFileUsed(); used != "" {
		logger.Debug("Loaded configuration from file", zap.String("file", used))
	}
	return logger, nil
}
