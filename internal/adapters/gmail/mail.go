package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Cfomodz/easemail/internal/core"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	gmailv1 "google.golang.org/api/gmail/v1"
)

const maxPageSize = 500

// systemLabels are Gmail's built-in label ids, usable without lookup
var systemLabels = map[string]bool{
	"INBOX": true, "SPAM": true, "TRASH": true, "UNREAD": true,
	"STARRED": true, "IMPORTANT": true, "SENT": true, "DRAFT": true,
}

// Client implements core.MailClient and core.DraftSink against the Gmail API.
// Labels are addressed by name; user label ids are resolved on first use.
type Client struct {
	svc     *gmailv1.Service
	user    string
	limiter *rate.Limiter
	logger  *zap.Logger

	mu     sync.Mutex
	labels map[string]string
}

// NewClient wraps svc. requestsPerSecond <= 0 disables client-side throttling.
func NewClient(svc *gmailv1.Service, user string, requestsPerSecond float64, logger *zap.Logger) *Client {
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = max(1, int(requestsPerSecond))
	}
	if user == "" {
		user = "me"
	}
	return &Client{
		svc:     svc,
		user:    user,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// EnsureLabels resolves each label name to its id, creating missing labels
func (c *Client) EnsureLabels(ctx context.Context, names ...string) error {
	if err := c.loadLabels(ctx); err != nil {
		return err
	}
	for _, name := range names {
		if name == "" || systemLabels[name] {
			continue
		}
		c.mu.Lock()
		_, ok := c.labels[name]
		c.mu.Unlock()
		if ok {
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		created, err := c.svc.Users.Labels.Create(c.user, &gmailv1.Label{
			Name:                  name,
			LabelListVisibility:   "labelShow",
			MessageListVisibility: "show",
		}).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("create label %s: %w", name, err)
		}
		c.logger.Info("Created Gmail label", zap.String("label", name))
		c.mu.Lock()
		c.labels[name] = created.Id
		c.mu.Unlock()
	}
	return nil
}

func (c *Client) loadLabels(ctx context.Context) error {
	c.mu.Lock()
	loaded := c.labels != nil
	c.mu.Unlock()
	if loaded {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	resp, err := c.svc.Users.Labels.List(c.user).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("list labels: %w", err)
	}
	labels := make(map[string]string, len(resp.Labels))
	for _, l := range resp.Labels {
		labels[l.Name] = l.Id
	}
	c.mu.Lock()
	c.labels = labels
	c.mu.Unlock()
	return nil
}

func (c *Client) labelIDs(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if err := c.EnsureLabels(ctx, names...); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(names))
	for _, name := range names {
		if id, ok := c.labels[name]; ok {
			ids = append(ids, id)
		} else {
			ids = append(ids, name)
		}
	}
	return ids, nil
}

// List returns up to max message ids matching query, newest first
func (c *Client) List(ctx context.Context, query string, max int) ([]string, error) {
	refs, err := c.Search(ctx, query, max)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids, nil
}

// Search returns up to max message refs matching query
func (c *Client) Search(ctx context.Context, query string, max int) ([]core.MessageRef, error) {
	var refs []core.MessageRef
	pageToken := ""
	for len(refs) < max {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		call := c.svc.Users.Messages.List(c.user).Q(query).MaxResults(int64(min(max-len(refs), maxPageSize)))
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("list messages %q: %w", query, err)
		}
		for _, m := range resp.Messages {
			refs = append(refs, core.MessageRef{ID: m.Id, ThreadID: m.ThreadId})
		}
		if resp.NextPageToken == "" || len(resp.Messages) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}
	if len(refs) > max {
		refs = refs[:max]
	}
	return refs, nil
}

// Get fetches message metadata and maps it onto an item
func (c *Client) Get(ctx context.Context, id string) (*core.Item, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	msg, err := c.svc.Users.Messages.Get(c.user, id).
		Format("metadata").
		MetadataHeaders("From", "Subject", "Date", "List-Unsubscribe").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return ItemFromMessage(msg), nil
}

// ItemFromMessage converts a metadata-format message into an item
func ItemFromMessage(msg *gmailv1.Message) *core.Item {
	item := &core.Item{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Labels:   msg.LabelIds,
	}
	if msg.InternalDate > 0 {
		item.ReceivedAt = time.UnixMilli(msg.InternalDate)
	}
	if msg.Payload == nil {
		return item
	}
	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			item.Sender = core.SenderAddress(h.Value)
		case "subject":
			item.Subject = h.Value
		case "list-unsubscribe":
			item.HasUnsubscribe = true
			item.UnsubscribeLink = core.UnsubscribeLink(h.Value)
		}
	}
	return item
}

// Modify adds and removes labels by name
func (c *Client) Modify(ctx context.Context, id string, add, remove []string) error {
	addIDs, err := c.labelIDs(ctx, add)
	if err != nil {
		return err
	}
	removeIDs, err := c.labelIDs(ctx, remove)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = c.svc.Users.Messages.Modify(c.user, id, &gmailv1.ModifyMessageRequest{
		AddLabelIds:    addIDs,
		RemoveLabelIds: removeIDs,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("modify message %s: %w", id, err)
	}
	return nil
}

// Trash moves a message to trash
func (c *Client) Trash(ctx context.Context, id string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := c.svc.Users.Messages.Trash(c.user, id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("trash message %s: %w", id, err)
	}
	return nil
}

// ThreadSize counts the messages in a thread
func (c *Client) ThreadSize(ctx context.Context, threadID string) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	t, err := c.svc.Users.Threads.Get(c.user, threadID).Format("minimal").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get thread %s: %w", threadID, err)
	}
	return len(t.Messages), nil
}

// CreateDraft stores an erasure request as a Gmail draft for review
func (c *Client) CreateDraft(ctx context.Context, d core.ErasureDraft) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	raw := base64.URLEncoding.EncodeToString(d.Message(""))
	_, err := c.svc.Users.Drafts.Create(c.user, &gmailv1.Draft{
		Message: &gmailv1.Message{Raw: raw},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("create draft to %s: %w", d.To, err)
	}
	c.logger.Info("Created erasure request draft", zap.String("to", d.To))
	return nil
}
