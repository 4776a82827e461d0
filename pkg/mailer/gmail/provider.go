// Package gmail delivers raw messages through the Gmail API on behalf of the
// signed-in user. Calls are guarded by a circuit breaker that opens on
// repeated Gmail 5xx or transport failures and ignores per-user errors.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/priyanshudevsingh/quickmailer/pkg/logger"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer"
)

const me = "me"

// Provider implements mailer.Provider using the Gmail API.
type Provider struct {
	httpClient     *http.Client
	logger         *slog.Logger
	cb             *gobreaker.CircuitBreaker
	endpoint       string
	timeout        time.Duration
	breakerTimeout time.Duration
}

// New creates a Gmail provider.
func New(cfg Config, opts ...Option) *Provider {
	p := &Provider{
		httpClient:     http.DefaultClient,
		logger:         logger.NewNope(),
		endpoint:       cfg.Endpoint,
		timeout:        cfg.Timeout,
		breakerTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     p.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !isServerSide(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return p
}

// Send delivers a raw message and returns the Gmail message ID.
func (p *Provider) Send(ctx context.Context, accessToken, raw string) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	svc, err := p.service(ctx, accessToken)
	if err != nil {
		return "", wrapError("send", err)
	}

	id, err := p.execute(func() (string, error) {
		msg, err := svc.Users.Messages.Send(me, &gmailapi.Message{Raw: raw}).Context(ctx).Do()
		if err != nil {
			return "", err
		}
		return msg.Id, nil
	})
	if err != nil {
		return "", wrapError("send", err)
	}
	return id, nil
}

// CreateDraft stores a raw message as a draft and returns the draft ID.
func (p *Provider) CreateDraft(ctx context.Context, accessToken, raw string) (string, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	svc, err := p.service(ctx, accessToken)
	if err != nil {
		return "", wrapError("create draft", err)
	}

	id, err := p.execute(func() (string, error) {
		draft, err := svc.Users.Drafts.Create(me, &gmailapi.Draft{
			Message: &gmailapi.Message{Raw: raw},
		}).Context(ctx).Do()
		if err != nil {
			return "", err
		}
		return draft.Id, nil
	})
	if err != nil {
		return "", wrapError("create draft", err)
	}
	return id, nil
}

// State returns the circuit breaker state for health reporting.
func (p *Provider) State() gobreaker.State {
	return p.cb.State()
}

func (p *Provider) execute(fn func() (string, error)) (string, error) {
	res, err := p.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return "", err
	}
	id, _ := res.(string)
	return id, nil
}

func (p *Provider) service(ctx context.Context, accessToken string) (*gmailapi.Service, error) {
	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   p.httpClient.Transport,
		},
		Timeout: p.httpClient.Timeout,
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	return gmailapi.NewService(ctx, opts...)
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// isServerSide reports whether err should count against the breaker.
// The breaker is shared by all users, so client errors and 429 do not:
// Gmail rate limits are per mailbox and fail only that user's recipient.
func isServerSide(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= http.StatusInternalServerError
	}
	return !errors.Is(err, context.Canceled)
}

func wrapError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: gmail %s: %w: %s", mailer.ErrProviderCall, op, ErrTokenRejected, apiErr.Message)
		default:
			msg := apiErr.Message
			if msg == "" {
				msg = http.StatusText(apiErr.Code)
			}
			return fmt.Errorf("%w: gmail %s: %d %s", mailer.ErrProviderCall, op, apiErr.Code, msg)
		}
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: gmail %s: temporarily unavailable: %w", mailer.ErrProviderCall, op, err)
	}
	return fmt.Errorf("%w: gmail %s: %w", mailer.ErrProviderCall, op, err)
}
