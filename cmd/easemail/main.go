package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/Cfomodz/easemail/internal/adapters/terminal"
	"github.com/Cfomodz/easemail/internal/config"
	"github.com/Cfomodz/easemail/internal/core"
	"github.com/Cfomodz/easemail/internal/di"
	"github.com/Cfomodz/easemail/internal/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "easemail",
		Short:         "Adaptive inbox triage",
		Long:          "easemail reviews your Gmail inbox a few messages at a time, suggests discard, defer or act now, and learns from every confirmed decision.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := di.RegisterFlags(root)

	root.RunE = func(cmd *cobra.Command, _ []string) error {
		return invoke(cmd.Context(), flags, run)
	}
	root.AddCommand(
		newPrefsCommand(flags),
		newStatsCommand(flags),
		newClassifyCommand(flags),
	)
	return root
}

// invoke builds the container for one command and runs fn inside it
func invoke(ctx context.Context, flags *di.CLIFlags, fn interface{}) error {
	container, err := di.BuildContainer(ctx, flags, di.IO{In: os.Stdin, Out: os.Stdout})
	if err != nil {
		return fmt.Errorf("failed to build dependency container: %w", err)
	}
	return dig.RootCause(container.Invoke(fn))
}

// run is the interactive triage session with all dependencies injected
func run(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	store core.PreferenceStore,
	classifier *core.Classifier,
	scheduler *core.Scheduler,
	notifier *core.Notifier,
	console *terminal.Console,
	keys *terminal.KeyReader,
	session *core.Session,
) error {
	defer logger.Sync()
	defer func() {
		if err := keys.Close(); err != nil {
			logger.Warn("Failed to restore terminal", zap.Error(err))
		}
	}()
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close preference store", zap.Error(err))
		}
		if err := classifier.Close(); err != nil {
			logger.Error("Failed to close LLM client", zap.Error(err))
		}
	}()

	metricsCtx, cancelMetrics := context.WithCancel(ctx)
	defer cancelMetrics()
	metrics.Serve(metricsCtx, cfg.GetMetrics().ListenAddress, logger)

	logger.Info("Starting triage session",
		zap.String("session_id", session.ID),
		zap.String("llm_provider", cfg.GetLLM().Provider))

	err := scheduler.Run(ctx)
	notifier.Interrupt()
	if cerr := notifier.Close(); cerr != nil {
		logger.Debug("Notifier did not close cleanly", zap.Error(cerr))
	}
	console.ShowStats(session.Stats.Snapshot())

	if err != nil && !core.IsQuit(err) {
		return err
	}
	logger.Info("Session finished", zap.String("session_id", session.ID))
	return nil
}
