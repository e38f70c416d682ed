package core

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TriageLabels are the mailbox labels decisions are filed under
type TriageLabels struct {
	Revisit      string
	ActionNeeded string
	OptOut       string
}

// InboxQuery selects inbox messages not yet filed under a triage label
func InboxQuery(labels TriageLabels) string {
	parts := []string{"in:inbox"}
	for _, l := range []string{labels.Revisit, labels.ActionNeeded, labels.OptOut} {
		if l != "" {
			parts = append(parts, "-label:"+l)
		}
	}
	return strings.Join(parts, " ")
}

// InboxSource lists untriaged messages and fetches them concurrently.
// Messages already offered in this session are never offered again.
type InboxSource struct {
	mail        MailClient
	query       string
	concurrency int
	logger      *zap.Logger
	seen        map[string]struct{}
}

// NewInboxSource creates an item source over mail
func NewInboxSource(mail MailClient, labels TriageLabels, concurrency int, logger *zap.Logger) *InboxSource {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &InboxSource{
		mail:        mail,
		query:       InboxQuery(labels),
		concurrency: concurrency,
		logger:      logger,
		seen:        make(map[string]struct{}),
	}
}

// Next returns up to max unseen items in listing order. Messages that
// cannot be fetched are logged and skipped.
func (s *InboxSource) Next(ctx context.Context, max int) ([]*Item, error) {
	ids, err := s.mail.List(ctx, s.query, max+len(s.seen))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var fresh []string
	for _, id := range ids {
		if _, ok := s.seen[id]; ok {
			continue
		}
		fresh = append(fresh, id)
		if len(fresh) == max {
			break
		}
	}

	fetched := make([]*Item, len(fresh))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range fresh {
		g.Go(func() error {
			item, err := s.mail.Get(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("Failed to fetch message", zap.String("item_id", id), zap.Error(err))
				return nil
			}
			fetched[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]*Item, 0, len(fetched))
	for i, item := range fetched {
		s.seen[fresh[i]] = struct{}{}
		if item != nil {
			items = append(items, item)
		}
	}
	return items, nil
}
