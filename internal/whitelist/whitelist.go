package whitelist

import (
	"strings"

	"go.uber.org/zap"
)

// Checker reports whether a sender belongs to a protected domain
type Checker struct {
	domains []string
	logger  *zap.Logger
}

// NewChecker creates a checker for domains
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	normalized := make([]string, 0, len(domains))
	for _, domain := range domains {
		if d := strings.ToLower(strings.TrimSpace(domain)); d != "" {
			normalized = append(normalized, d)
		}
	}

	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized unsubscribe whitelist", zap.Strings("domains", normalized))
	}

	return &Checker{
		domains: normalized,
		logger:  logger,
	}
}

// IsWhitelisted reports whether the sender's domain contains a whitelisted
// domain, so that mail.github.com matches github.com.
func (c *Checker) IsWhitelisted(sender string) bool {
	at := strings.LastIndex(sender, "@")
	if at < 0 || len(c.domains) == 0 {
		return false
	}
	domain := strings.ToLower(sender[at+1:])

	for _, whitelisted := range c.domains {
		if strings.Contains(domain, whitelisted) {
			if c.logger != nil {
				c.logger.Debug("Sender domain is whitelisted",
					zap.String("domain", domain),
					zap.String("sender", sender))
			}
			return true
		}
	}
	return false
}
