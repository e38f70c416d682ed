package factory

import (
	"context"
	"fmt"
	"io"

	"github.com/Cfomodz/easemail/internal/adapters/gmail"
	"github.com/Cfomodz/easemail/internal/adapters/unsubscribe"
	"github.com/Cfomodz/easemail/internal/config"
	"github.com/Cfomodz/easemail/internal/core"
	"github.com/Cfomodz/easemail/internal/whitelist"
	"go.uber.org/zap"
)

// MailFactory creates the Gmail client and the pieces that act on mail
type MailFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewMailFactory creates a new mail factory
func NewMailFactory(cfg *config.Config, logger *zap.Logger) *MailFactory {
	return &MailFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// Labels returns the configured triage labels
func (f *MailFactory) Labels() core.TriageLabels {
	g := f.cfg.GetGmail()
	return core.TriageLabels{
		Revisit:      g.RevisitLabel,
		ActionNeeded: g.ActionLabel,
		OptOut:       g.OptOutLabel,
	}
}

// CreateClient authorizes against Gmail, prompting on w when no cached token
// exists, and makes sure the triage labels exist.
func (f *MailFactory) CreateClient(ctx context.Context, w io.Writer) (*gmail.Client, error) {
	g := f.cfg.GetGmail()
	svc, err := gmail.NewService(ctx, g.CredentialsPath, g.TokenPath, w, f.logger)
	if err != nil {
		return nil, fmt.Errorf("authorize gmail: %w", err)
	}

	client := gmail.NewClient(svc, g.User, g.RequestsPerSecond, f.logger)
	labels := f.Labels()
	if err := client.EnsureLabels(ctx, labels.Revisit, labels.ActionNeeded, labels.OptOut); err != nil {
		return nil, err
	}
	return client, nil
}

// CreateInboxSource lists untriaged inbox mail through client
func (f *MailFactory) CreateInboxSource(client core.MailClient) *core.InboxSource {
	return core.NewInboxSource(client, f.Labels(), f.cfg.GetGmail().Concurrency, f.logger)
}

// CreateUnsubscriber returns nil when unsubscription is disabled
func (f *MailFactory) CreateUnsubscriber() core.Unsubscriber {
	u := f.cfg.GetUnsubscribe()
	if !u.Enabled {
		return nil
	}
	wl := whitelist.NewChecker(u.WhitelistedDomains, f.logger)
	return unsubscribe.NewHTTPUnsubscriber(u.Timeout, wl, f.logger)
}

// CreateApplier wires the applier over client with the given draft sink
func (f *MailFactory) CreateApplier(client core.MailClient, drafts core.DraftSink) *core.MailApplier {
	return core.NewMailApplier(client, drafts, f.CreateUnsubscriber(), f.Labels(), f.logger)
}
