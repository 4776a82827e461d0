package mailer

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/priyanshudevsingh/quickmailer/pkg/logger"
	"github.com/priyanshudevsingh/quickmailer/pkg/sanitizer"
)

const (
	crlf        = "\r\n"
	lineLength  = 76
	defaultType = "application/octet-stream"

	htmlShellStart = `<html><head><style>a{color:#1155cc!important;text-decoration:none!important}a:hover{text-decoration:underline!important}strong{font-weight:bold!important}</style></head><body>`
	htmlShellEnd   = `</body></html>`
)

// Fetcher loads attachment bytes by storage key.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, key string) ([]byte, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, key string) ([]byte, error) {
	return f(ctx, key)
}

// Builder assembles raw RFC 2822 messages for providers that accept
// base64url encoded mail, such as the Gmail API.
type Builder struct {
	fetcher  Fetcher
	logger   *slog.Logger
	boundary func() string
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithFetcher sets the collaborator used to load attachment bytes by key.
func WithFetcher(f Fetcher) BuilderOption {
	return func(b *Builder) {
		b.fetcher = f
	}
}

// WithBuilderLogger sets the logger for skipped attachment warnings.
func WithBuilderLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithBoundary overrides the multipart boundary generator.
func WithBoundary(fn func() string) BuilderOption {
	return func(b *Builder) {
		if fn != nil {
			b.boundary = fn
		}
	}
}

// NewBuilder creates a message builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		logger:   logger.NewNope(),
		boundary: randomBoundary,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles msg and returns it base64url encoded without padding.
func (b *Builder) Build(ctx context.Context, msg Message) (string, error) {
	raw, err := b.Compose(ctx, msg)
	if err != nil {
		return "", err
	}
	return EncodeRaw(raw), nil
}

// Compose assembles msg as RFC 2822 bytes. The HTML body is cleaned, wrapped
// in a minimal document and quoted-printable encoded. With attachments the
// message becomes multipart/mixed; attachments whose bytes cannot be loaded
// are skipped with a warning.
func (b *Builder) Compose(ctx context.Context, msg Message) ([]byte, error) {
	to, err := headerRecipient(msg.To)
	if err != nil {
		return nil, err
	}

	body, err := encodeQuotedPrintable(htmlShellStart + sanitizer.Clean(msg.HTML) + htmlShellEnd)
	if err != nil {
		return nil, errors.Join(ErrMessageBuild, err)
	}

	attachments := b.Prefetch(ctx, msg.Attachments)

	var buf bytes.Buffer
	buf.WriteString("To: " + to + crlf)
	buf.WriteString("Subject: " + encodeSubject(msg.Subject) + crlf)
	buf.WriteString("MIME-Version: 1.0" + crlf)

	if len(attachments) == 0 {
		buf.WriteString("Content-Type: text/html; charset=utf-8" + crlf)
		buf.WriteString("Content-Transfer-Encoding: quoted-printable" + crlf)
		buf.WriteString(crlf)
		buf.WriteString(body)
		return buf.Bytes(), nil
	}

	boundary := b.boundary()
	buf.WriteString(`Content-Type: multipart/mixed; boundary="` + boundary + `"` + crlf)
	buf.WriteString(crlf)

	buf.WriteString("--" + boundary + crlf)
	buf.WriteString("Content-Type: text/html; charset=utf-8" + crlf)
	buf.WriteString("Content-Transfer-Encoding: quoted-printable" + crlf)
	buf.WriteString(crlf)
	buf.WriteString(body + crlf)

	for _, a := range attachments {
		name := attachmentFilename(a.Filename)
		buf.WriteString("--" + boundary + crlf)
		buf.WriteString("Content-Type: " + attachmentType(a.ContentType) + "; name=" + name + crlf)
		buf.WriteString("Content-Disposition: attachment; filename=" + name + crlf)
		buf.WriteString("Content-Transfer-Encoding: base64" + crlf)
		buf.WriteString(crlf)
		writeBase64Lines(&buf, a.Content)
	}
	buf.WriteString("--" + boundary + "--" + crlf)

	return buf.Bytes(), nil
}

// Prefetch loads the bytes of every attachment that is not yet loaded.
// Attachments that cannot be loaded are dropped and logged.
func (b *Builder) Prefetch(ctx context.Context, attachments []Attachment) []Attachment {
	if len(attachments) == 0 {
		return nil
	}
	loaded := make([]Attachment, 0, len(attachments))
	for _, a := range attachments {
		if a.Loaded() {
			loaded = append(loaded, a)
			continue
		}
		if b.fetcher == nil || a.Key == "" {
			b.logger.WarnContext(ctx, "attachment skipped: no content source",
				slog.String("attachment", a.Filename),
				slog.String("key", a.Key),
			)
			continue
		}
		content, err := b.fetcher.Fetch(ctx, a.Key)
		if err != nil {
			b.logger.WarnContext(ctx, "attachment skipped: fetch failed",
				slog.String("attachment", a.Filename),
				slog.String("key", a.Key),
				slog.Any("error", err),
			)
			continue
		}
		if content == nil {
			content = []byte{}
		}
		a.Content = content
		loaded = append(loaded, a)
	}
	return loaded
}

// EncodeRaw returns raw base64url encoded without padding.
func EncodeRaw(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

// DecodeRaw reverses EncodeRaw. Padded input is accepted.
func DecodeRaw(encoded string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
}

func headerRecipient(to string) (string, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return "", errors.Join(ErrMessageBuild, ErrNoRecipient)
	}
	if strings.ContainsAny(to, "\r\n") {
		return "", fmt.Errorf("%w: recipient contains a line break", ErrMessageBuild)
	}
	if _, err := mail.ParseAddress(to); err != nil {
		return "", fmt.Errorf("%w: invalid recipient %q: %v", ErrMessageBuild, to, err)
	}
	return to, nil
}

// encodeSubject folds line breaks and applies RFC 2047 Q-encoding only when
// the subject is not plain ASCII.
func encodeSubject(subject string) string {
	subject = strings.Join(strings.FieldsFunc(subject, func(r rune) bool {
		return r == '\r' || r == '\n'
	}), " ")
	if isASCII(subject) {
		return subject
	}
	return mime.QEncoding.Encode("utf-8", subject)
}

func encodeQuotedPrintable(s string) (string, error) {
	var buf bytes.Buffer
	w := quotedprintable.NewWriter(&buf)
	if _, err := w.Write([]byte(s)); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func attachmentFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		if r == '\r' || r == '\n' {
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		name = "attachment"
	}
	if !isASCII(name) {
		return `"` + mime.QEncoding.Encode("utf-8", name) + `"`
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name) + `"`
}

func attachmentType(ct string) string {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || strings.ContainsAny(ct, "\r\n") {
		return defaultType
	}
	return mediaType
}

func writeBase64Lines(buf *bytes.Buffer, content []byte) {
	encoded := base64.StdEncoding.EncodeToString(content)
	for len(encoded) > lineLength {
		buf.WriteString(encoded[:lineLength] + crlf)
		encoded = encoded[lineLength:]
	}
	buf.WriteString(encoded + crlf)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func randomBoundary() string {
	return "boundary_" + rand.Text()
}
