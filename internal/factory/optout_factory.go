package factory

import (
	"fmt"

	"github.com/Cfomodz/easemail/internal/adapters/optout"
	"github.com/Cfomodz/easemail/internal/config"
	"github.com/Cfomodz/easemail/internal/core"
	"go.uber.org/zap"
)

// OptOutFactory creates the opt-out ledger and erasure delivery
type OptOutFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewOptOutFactory creates a new opt-out factory
func NewOptOutFactory(cfg *config.Config, logger *zap.Logger) *OptOutFactory {
	return &OptOutFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateLedger opens the opt-out ledger
func (f *OptOutFactory) CreateLedger() (*optout.Ledger, error) {
	o := f.cfg.GetOptOut()
	return optout.NewLedger(o.LedgerPath, o.RepeatAfter, f.logger)
}

// CreateDraftSink picks where erasure requests go. gmail leaves them as
// drafts on mailbox; smtp sends them through the configured relay.
func (f *OptOutFactory) CreateDraftSink(mailbox core.DraftSink) (core.DraftSink, error) {
	o := f.cfg.GetOptOut()
	switch o.Delivery {
	case "gmail", "":
		return mailbox, nil
	case "smtp":
		return optout.NewSMTPSink(o.SMTPAddress, o.SMTPFrom, f.logger)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported opt-out delivery: %s", o.Delivery)
	}
}
