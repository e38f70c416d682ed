package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	labelInbox  = "INBOX"
	labelUnread = "UNREAD"
	labelSpam   = "SPAM"

	bulkSearchLimit = 100
)

// MailApplier maps confirmed decisions onto mailbox operations
type MailApplier struct {
	mail   MailClient
	drafts DraftSink
	unsub  Unsubscriber
	labels TriageLabels
	logger *zap.Logger
}

// NewMailApplier creates an applier. drafts and unsub may be nil.
func NewMailApplier(mail MailClient, drafts DraftSink, unsub Unsubscriber, labels TriageLabels, logger *zap.Logger) *MailApplier {
	return &MailApplier{
		mail:   mail,
		drafts: drafts,
		unsub:  unsub,
		labels: labels,
		logger: logger,
	}
}

// Apply carries out d against the mailbox
func (a *MailApplier) Apply(ctx context.Context, item *Item, d *Decision) error {
	switch d.Action {
	case ActionDiscard:
		if a.unsub != nil && item.HasUnsubscribe {
			if err := a.unsub.Unsubscribe(ctx, item); err != nil {
				a.logger.Warn("Unsubscribe failed", zap.String("sender", item.Sender), zap.Error(err))
			}
		}
		return a.mail.Trash(ctx, item.ID)

	case ActionDefer:
		return a.mail.Modify(ctx, item.ID, []string{a.labels.Revisit}, []string{labelInbox})

	case ActionActNow:
		return a.mail.Modify(ctx, item.ID, []string{a.labels.ActionNeeded}, nil)

	case ActionErasureRequest:
		var errs []error
		if d.Payload != nil && d.Payload.Erasure != nil && a.drafts != nil {
			if err := a.drafts.CreateDraft(ctx, d.Payload.Erasure.Draft); err != nil {
				errs = append(errs, fmt.Errorf("create erasure draft: %w", err))
			}
		}
		if err := a.mail.Modify(ctx, item.ID, []string{a.labels.OptOut}, []string{labelInbox}); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)

	case ActionMarkSpam:
		return a.mail.Modify(ctx, item.ID, []string{labelSpam}, []string{labelInbox})

	case ActionBulkDiscard:
		if d.Payload == nil || d.Payload.Bulk == nil {
			return fmt.Errorf("bulk discard for %s: missing payload", item.ID)
		}
		n, err := a.BulkDiscard(ctx, item, d.Payload.Bulk)
		a.logger.Info("Bulk discarded messages",
			zap.String("sender", d.Payload.Bulk.Sender),
			zap.Int("count", n))
		return err
	}
	return fmt.Errorf("unsupported action %q", d.Action)
}

// BulkQuery builds the search for messages sharing a sender and subject
func BulkQuery(sender, subject string) string {
	q := fmt.Sprintf(`from:"%s"`, sender)
	if s := strings.ReplaceAll(CleanSubject(subject), `"`, ""); s != "" {
		q += fmt.Sprintf(` subject:"%s"`, s)
	}
	return q
}

// BulkDiscard marks read and archives every single-message thread that
// matches the payload's sender and subject. Conversations are left alone.
func (a *MailApplier) BulkDiscard(ctx context.Context, item *Item, p *BulkPayload) (int, error) {
	refs, err := a.mail.Search(ctx, BulkQuery(p.Sender, p.Subject), bulkSearchLimit)
	if err != nil {
		return 0, fmt.Errorf("search bulk matches: %w", err)
	}

	self := false
	for _, r := range refs {
		if r.ID == item.ID {
			self = true
			break
		}
	}
	if !self {
		refs = append(refs, MessageRef{ID: item.ID, ThreadID: item.ThreadID})
	}

	sizes := make(map[string]int)
	archived := 0
	var errs []error
	for _, r := range refs {
		if err := ctx.Err(); err != nil {
			return archived, err
		}
		size, ok := sizes[r.ThreadID]
		if !ok && r.ThreadID != "" {
			size, err = a.mail.ThreadSize(ctx, r.ThreadID)
			if err != nil {
				errs = append(errs, fmt.Errorf("thread %s: %w", r.ThreadID, err))
				continue
			}
			sizes[r.ThreadID] = size
		}
		if r.ThreadID != "" && size != 1 {
			continue
		}
		if err := a.mail.Modify(ctx, r.ID, nil, []string{labelUnread, labelInbox}); err != nil {
			errs = append(errs, fmt.Errorf("archive message %s: %w", r.ID, err))
			continue
		}
		archived++
	}
	return archived, errors.Join(errs...)
}
