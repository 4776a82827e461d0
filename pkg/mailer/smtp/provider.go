// Package smtp delivers raw messages through an SMTP relay.
// Drafts are not supported.
package smtp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/priyanshudevsingh/quickmailer/pkg/mailer"
)

// Provider implements mailer.Provider over SMTP.
type Provider struct {
	cfg Config
	now func() time.Time
}

// New creates an SMTP provider.
func New(cfg Config) *Provider {
	return &Provider{cfg: cfg, now: time.Now}
}

// Send relays the decoded message. The access token is not used.
// The returned ID is the generated Message-ID.
func (p *Provider) Send(ctx context.Context, _ string, raw string) (string, error) {
	msg, err := mailer.DecodeRaw(raw)
	if err != nil {
		return "", fmt.Errorf("%w: smtp: decode message: %w", mailer.ErrProviderCall, err)
	}

	to, err := recipients(msg)
	if err != nil {
		return "", fmt.Errorf("%w: smtp: %w", mailer.ErrProviderCall, err)
	}

	id := uuid.NewString()
	var envelope bytes.Buffer
	envelope.WriteString("From: " + p.cfg.From + "\r\n")
	envelope.WriteString("Date: " + p.now().Format(time.RFC1123Z) + "\r\n")
	envelope.WriteString("Message-ID: <" + id + "@" + p.cfg.Host + ">\r\n")
	envelope.Write(msg)

	if err := p.deliver(ctx, to, &envelope); err != nil {
		return "", fmt.Errorf("%w: smtp: %w", mailer.ErrProviderCall, err)
	}
	return id, nil
}

// CreateDraft always fails: SMTP has no mailbox to hold drafts.
func (p *Provider) CreateDraft(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("%w: smtp: %w", mailer.ErrProviderCall, mailer.ErrDraftUnsupported)
}

func (p *Provider) deliver(ctx context.Context, to []string, body *bytes.Buffer) error {
	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	dialer := net.Dialer{Timeout: p.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c := gosmtp.NewClient(conn)
	defer c.Close()

	if p.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", p.cfg.Username, p.cfg.Password)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.SendMail(p.cfg.From, to, body); err != nil {
		return err
	}
	return c.Quit()
}

func recipients(msg []byte) ([]string, error) {
	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(msg)))
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := mail.Header{Header: message.Header{Header: th}}
	list, err := h.AddressList("To")
	if err != nil {
		return nil, fmt.Errorf("parse To header: %w", err)
	}
	to := make([]string, 0, len(list))
	for _, a := range list {
		if addr := strings.TrimSpace(a.Address); addr != "" {
			to = append(to, addr)
		}
	}
	if len(to) == 0 {
		return nil, mailer.ErrNoRecipient
	}
	return to, nil
}
