package factory

import (
	"context"
	"fmt"

	"github.com/Cfomodz/easemail/internal/adapters/bedrock"
	"github.com/Cfomodz/easemail/internal/adapters/gemini"
	"github.com/Cfomodz/easemail/internal/adapters/openai"
	"github.com/Cfomodz/easemail/internal/config"
	"github.com/Cfomodz/easemail/internal/core"
	"github.com/Cfomodz/easemail/internal/utils"
	"go.uber.org/zap"
)

// LLMFactory creates the external model behind the classifier's model tier
type LLMFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *LLMFactory {
	return &LLMFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateModel creates the configured model client. It returns nil without
// error when no provider is configured.
func (f *LLMFactory) CreateModel(ctx context.Context) (core.ExternalModel, error) {
	llmConfig := f.cfg.GetLLM()

	switch llmConfig.Provider {
	case "":
		f.logger.Info("No LLM provider configured, model tier disabled")
		return nil, nil
	case "bedrock":
		return bedrock.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient(ctx)
	case "gemini":
		return gemini.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient(ctx)
	case "openai":
		return openai.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmConfig.Provider)
	}
}

// CreateClassifier builds the tiered classifier over store
func (f *LLMFactory) CreateClassifier(ctx context.Context, prefs core.PreferenceStore) (*core.Classifier, error) {
	triage := f.cfg.GetTriage()
	rules := core.HeuristicRules{
		ImportantKeywords: triage.ImportantKeywords,
		MarketingKeywords: triage.MarketingKeywords,
	}

	model, err := f.CreateModel(ctx)
	if err != nil {
		return nil, err
	}
	var opts []core.ClassifierOption
	if model != nil {
		llmConfig := f.cfg.GetLLM()
		opts = append(opts, core.WithExternalModel(model, llmConfig.Timeout, llmConfig.ContextSize))
	}
	return core.NewClassifier(prefs, rules, f.logger, opts...), nil
}
