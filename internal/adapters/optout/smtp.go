package optout

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/Cfomodz/easemail/internal/core"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

// SMTPSink sends erasure requests straight to the sender through a relay
// instead of leaving them as drafts.
type SMTPSink struct {
	addr   string
	from   string
	dialer net.Dialer
	logger *zap.Logger
}

// NewSMTPSink creates a sink relaying through addr
func NewSMTPSink(addr, from string, logger *zap.Logger) (*SMTPSink, error) {
	if addr == "" || from == "" {
		return nil, fmt.Errorf("smtp delivery requires both an address and a from address")
	}
	return &SMTPSink{addr: addr, from: from, logger: logger}, nil
}

// CreateDraft sends the draft. The relay connection is upgraded with
// STARTTLS only when the relay advertises it.
func (s *SMTPSink) CreateDraft(ctx context.Context, d core.ErasureDraft) error {
	c, err := s.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("connect to relay %s: %w", s.addr, err)
	}
	defer c.Close()

	if err := c.SendMail(s.from, []string{d.To}, bytes.NewReader(d.Message(s.from))); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("send erasure request to %s: %w", d.To, err)
	}
	if err := c.Quit(); err != nil {
		s.logger.Debug("Relay did not close cleanly", zap.Error(err))
	}
	s.logger.Info("Sent erasure request", zap.String("to", d.To), zap.String("relay", s.addr))
	return nil
}

func (s *SMTPSink) connect(ctx context.Context) (*smtp.Client, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	c := smtp.NewClient(conn)
	if ok, _ := c.Extension("STARTTLS"); !ok {
		return c, nil
	}
	c.Close()

	conn, err = s.dial(ctx)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(s.addr)
	return smtp.NewClientStartTLS(conn, &tls.Config{ServerName: host})
}

// dial opens a connection that is closed as soon as ctx is done
func (s *SMTPSink) dial(ctx context.Context) (net.Conn, error) {
	conn, err := s.dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	return &ctxConn{Conn: conn, stop: stop}, nil
}

type ctxConn struct {
	net.Conn
	stop func() bool
}

func (c *ctxConn) Close() error {
	c.stop()
	return c.Conn.Close()
}
