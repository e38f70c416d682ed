package mailfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Cfomodz/easemail/internal/core"
	"github.com/Cfomodz/easemail/internal/utils"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

const noTextContent = "[No text content found in message]"

// Parser turns RFC 822 messages into items for offline classification
type Parser struct {
	tp         *utils.TextProcessor
	maxSnippet int
}

// NewParser creates a parser that keeps at most maxSnippet bytes of body text
func NewParser(tp *utils.TextProcessor, maxSnippet int) *Parser {
	return &Parser{tp: tp, maxSnippet: maxSnippet}
}

// ParseFile reads an .eml file; the file name becomes the item id when the
// message has no Message-Id.
func (p *Parser) ParseFile(path string) (*core.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return p.Parse(f, filepath.Base(path))
}

// Parse reads a message from r
func (p *Parser) Parse(r io.Reader, fallbackID string) (*core.Item, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && mr == nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	item := &core.Item{ID: fallbackID}
	if id, err := h.MessageID(); err == nil && id != "" {
		item.ID = id
	}
	if subject, err := h.Subject(); err == nil {
		item.Subject = subject
	} else {
		item.Subject = h.Get("Subject")
	}
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		item.Sender = strings.ToLower(from[0].Address)
	} else {
		item.Sender = core.SenderAddress(h.Get("From"))
	}
	if date, err := h.Date(); err == nil {
		item.ReceivedAt = date
	}
	if lu := h.Get("List-Unsubscribe"); lu != "" {
		item.HasUnsubscribe = true
		item.UnsubscribeLink = core.UnsubscribeLink(lu)
	}

	text, err := textContent(mr)
	if err != nil {
		return nil, err
	}
	item.Snippet = p.tp.ProcessText(text, p.maxSnippet)
	return item, nil
}

// textContent joins the text/plain parts, skipping attachments
func textContent(mr *mail.Reader) (string, error) {
	var b strings.Builder
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if b.Len() > 0 {
				break
			}
			return "", fmt.Errorf("read message part: %w", err)
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		// a missing Content-Type defaults to text/plain
		ct, _, _ := inline.ContentType()
		if ct != "" && !strings.EqualFold(ct, "text/plain") {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		b.Write(body)
		b.WriteString("\n")
	}
	if b.Len() == 0 {
		return noTextContent, nil
	}
	return strings.TrimSpace(b.String()), nil
}
