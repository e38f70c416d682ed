package di

import (
	"context"
	"io"
	"os"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/Cfomodz/easemail/internal/adapters/gmail"
	"github.com/Cfomodz/easemail/internal/adapters/mailfile"
	"github.com/Cfomodz/easemail/internal/adapters/terminal"
	"github.com/Cfomodz/easemail/internal/config"
	"github.com/Cfomodz/easemail/internal/core"
	"github.com/Cfomodz/easemail/internal/factory"
	"github.com/Cfomodz/easemail/internal/utils"
)

// IO holds the operator's terminal
type IO struct {
	In  *os.File
	Out io.Writer
}

// BuildContainer creates the dependency injection container. Constructors run
// lazily, so commands that never ask for the Gmail client never authorize.
func BuildContainer(ctx context.Context, flags *CLIFlags, term IO) (*dig.Container, error) {
	container := dig.New()

	providers := []interface{}{
		func() context.Context { return ctx },
		func() *CLIFlags { return flags },
		func() IO { return term },
		LoadConfig,
		NewLogger,

		// Factories
		factory.NewLLMFactory,
		factory.NewStoreFactory,
		factory.NewMailFactory,
		factory.NewOptOutFactory,
		factory.NewSpeechFactory,

		utils.NewTextProcessor,
		func(f *factory.StoreFactory) (core.PreferenceStore, error) {
			return f.CreateStore(ctx)
		},
		func(f *factory.LLMFactory, store core.PreferenceStore) (*core.Classifier, error) {
			return f.CreateClassifier(ctx, store)
		},
		func(cfg *config.Config, store core.PreferenceStore, logger *zap.Logger) *core.Learner {
			return core.NewLearner(store, cfg.GetTriage().LearnSubjectKeywords, logger)
		},
		func(f *factory.OptOutFactory) (core.OptOutRegistry, error) {
			return f.CreateLedger()
		},
		func(cfg *config.Config, tp *utils.TextProcessor) *mailfile.Parser {
			return mailfile.NewParser(tp, cfg.GetTriage().SnippetSize)
		},
		core.NewSession,

		// Interactive session
		func(term IO, flags *CLIFlags) *terminal.Console {
			return terminal.NewConsole(term.Out, flags.Verbose)
		},
		func(term IO) *terminal.KeyReader {
			return terminal.NewKeyReader(term.In)
		},
		func(f *factory.SpeechFactory, term IO) (*core.Notifier, error) {
			return f.CreateNotifier(term.Out)
		},
		func(f *factory.MailFactory, term IO) (*gmail.Client, error) {
			return f.CreateClient(ctx, term.Out)
		},
		func(mf *factory.MailFactory, of *factory.OptOutFactory, client *gmail.Client) (*core.MailApplier, error) {
			drafts, err := of.CreateDraftSink(client)
			if err != nil {
				return nil, err
			}
			return mf.CreateApplier(client, drafts), nil
		},
		newPipeline,
		newScheduler,
	}

	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return nil, err
		}
	}
	return container, nil
}

type pipelineParams struct {
	dig.In

	Config   *config.Config
	Logger   *zap.Logger
	Learner  *core.Learner
	Notifier *core.Notifier
	Keys     *terminal.KeyReader
	Console  *terminal.Console
	Applier  *core.MailApplier
	OptOut   core.OptOutRegistry
	Session  *core.Session
}

func newPipeline(p pipelineParams) *core.Pipeline {
	return core.NewPipeline(
		p.Learner,
		p.Notifier,
		p.Keys,
		p.Console,
		p.Applier,
		p.OptOut,
		p.Session,
		p.Config.GetTriage().AutoDecideThreshold,
		p.Logger,
	)
}

func newScheduler(
	cfg *config.Config,
	mf *factory.MailFactory,
	client *gmail.Client,
	classifier *core.Classifier,
	pipeline *core.Pipeline,
	notifier *core.Notifier,
	logger *zap.Logger,
) *core.Scheduler {
	triage := cfg.GetTriage()
	return core.NewScheduler(
		mf.CreateInboxSource(client),
		classifier,
		pipeline,
		notifier,
		core.SchedulerConfig{
			FetchSize:   triage.FetchBatchSize,
			ChunkSize:   triage.BatchSize,
			Background:  triage.SmartBatching && triage.PreprocessNextBatch,
			JoinTimeout: triage.WorkerJoinTimeout,
		},
		logger,
	)
}
