package unsubscribe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Cfomodz/easemail/internal/core"
	"github.com/Cfomodz/easemail/internal/whitelist"
	"go.uber.org/zap"
)

const userAgent = "easemail/1.0 (+unsubscribe)"

// HTTPUnsubscriber follows List-Unsubscribe links of discarded mail
type HTTPUnsubscriber struct {
	client    *http.Client
	whitelist *whitelist.Checker
	logger    *zap.Logger
}

// NewHTTPUnsubscriber creates an unsubscriber. Senders matching wl are left
// subscribed.
func NewHTTPUnsubscriber(timeout time.Duration, wl *whitelist.Checker, logger *zap.Logger) *HTTPUnsubscriber {
	return &HTTPUnsubscriber{
		client:    &http.Client{Timeout: timeout},
		whitelist: wl,
		logger:    logger,
	}
}

// Unsubscribe requests the item's unsubscribe link
func (u *HTTPUnsubscriber) Unsubscribe(ctx context.Context, item *core.Item) error {
	if item.UnsubscribeLink == "" {
		return nil
	}
	if u.whitelist != nil && u.whitelist.IsWhitelisted(item.Sender) {
		u.logger.Debug("Skipping unsubscribe for whitelisted sender", zap.String("sender", item.Sender))
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.UnsubscribeLink, nil)
	if err != nil {
		return fmt.Errorf("build unsubscribe request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := u.client.Do(req)
	if err != nil {
		return fmt.Errorf("unsubscribe from %s: %w", item.Sender, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("unsubscribe from %s: status %d", item.Sender, resp.StatusCode)
	}
	u.logger.Info("Unsubscribed", zap.String("sender", item.Sender), zap.Int("status", resp.StatusCode))
	return nil
}
