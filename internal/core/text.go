package core

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Fold case-folds s for keyword matching. A Caser is stateful, so one is
// built per call.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// SubjectTokens splits a subject on whitespace and case-folds each token
func SubjectTokens(subject string) []string {
	return strings.Fields(Fold(subject))
}

// LearnableKeywords returns up to limit subject tokens longer than three characters
func LearnableKeywords(subject string, limit int) []string {
	var out []string
	for _, tok := range SubjectTokens(subject) {
		if len(out) >= limit {
			break
		}
		if utf8.RuneCountInString(tok) > 3 {
			out = append(out, tok)
		}
	}
	return out
}

var replyPrefix = regexp.MustCompile(`(?i)^\s*(re|fwd?)\s*:\s*`)

// CleanSubject strips any leading reply and forward prefixes
func CleanSubject(subject string) string {
	s := subject
	for replyPrefix.MatchString(s) {
		s = replyPrefix.ReplaceAllString(s, "")
	}
	return strings.TrimSpace(s)
}

var unsubscribeURL = regexp.MustCompile(`<(https?://[^>]+)>`)

// SenderAddress extracts the bare lower-cased address from a From header
func SenderAddress(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return strings.ToLower(addr.Address)
	}
	if i, j := strings.LastIndexByte(from, '<'), strings.LastIndexByte(from, '>'); i >= 0 && j > i {
		return strings.ToLower(strings.TrimSpace(from[i+1 : j]))
	}
	return strings.ToLower(strings.TrimSpace(from))
}

// UnsubscribeLink returns the first http(s) URL of a List-Unsubscribe header
func UnsubscribeLink(header string) string {
	if m := unsubscribeURL.FindStringSubmatch(header); m != nil {
		return m[1]
	}
	return ""
}
