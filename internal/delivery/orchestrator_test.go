package delivery_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyanshudevsingh/quickmailer/internal/credential"
	"github.com/priyanshudevsingh/quickmailer/internal/delivery"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer"
	"github.com/priyanshudevsingh/quickmailer/pkg/sheet"
)

type parsed struct {
	to, subject, html string
	attachments       []string
}

func parseMessage(t *testing.T, raw string) parsed {
	t.Helper()

	e, err := message.Read(bytes.NewReader([]byte(raw)))
	require.NoError(t, err)
	p := parsed{to: e.Header.Get("To")}
	p.subject, err = e.Header.Text("Subject")
	require.NoError(t, err)

	mr := e.MultipartReader()
	if mr == nil {
		body, err := io.ReadAll(e.Body)
		require.NoError(t, err)
		p.html = string(body)
		return p
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if _, params, _ := part.Header.ContentDisposition(); params["filename"] != "" {
			p.attachments = append(p.attachments, params["filename"])
			continue
		}
		body, err := io.ReadAll(part.Body)
		require.NoError(t, err)
		p.html = string(body)
	}
	return p
}

func recipients(emails ...string) []sheet.Recipient {
	out := make([]sheet.Recipient, 0, len(emails))
	for _, e := range emails {
		name, _, _ := strings.Cut(e, "@")
		out = append(out, sheet.Recipient{Email: e, Values: map[string]string{"email": e, "name": name}})
	}
	return out
}

func newOrchestrator(tokens delivery.TokenSource, p mailer.Provider, f mailer.Fetcher) *delivery.Orchestrator {
	return delivery.NewOrchestrator(tokens, mailer.NewBuilder(mailer.WithFetcher(f)), p,
		delivery.WithPacing(time.Millisecond, time.Millisecond))
}

func TestOrchestrator_IsolatesRecipientFailures(t *testing.T) {
	t.Parallel()

	provider := &recordingProvider{reject: map[string]bool{"bob@example.com": true}}
	o := newOrchestrator(&stubTokens{}, provider, &countingFetcher{})

	var progress []int
	res, err := o.Run(context.Background(), delivery.Batch{
		UserID:     uuid.New(),
		Subject:    "Hi {{name}}",
		Body:       "<p>Hello {{ name }}, your code is {{code}}</p>",
		Recipients: recipients("ada@example.com", "bob@example.com", "cy@example.com"),
		Mode:       delivery.ModeSend,
		OnProgress: func(done, total int) {
			assert.Equal(t, 3, total)
			progress = append(progress, done)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalRecipients)
	assert.Equal(t, 2, res.SuccessCount)
	assert.Equal(t, 1, res.FailureCount)
	assert.False(t, res.Cancelled)
	assert.Equal(t, []int{1, 2, 3}, progress)

	require.Len(t, res.Results, 3)
	assert.Equal(t, "ada@example.com", res.Results[0].Email)
	assert.True(t, res.Results[0].Success)
	assert.NotEmpty(t, res.Results[0].MessageID)
	assert.Equal(t, "bob@example.com", res.Results[1].Email)
	assert.False(t, res.Results[1].Success)
	assert.Contains(t, res.Results[1].Error, "mailbox full")
	assert.True(t, res.Results[2].Success)

	sent, drafts := provider.messages()
	assert.Empty(t, drafts)
	require.Len(t, sent, 2)
	msg := parseMessage(t, sent[0])
	assert.Equal(t, "ada@example.com", msg.to)
	assert.Equal(t, "Hi ada", msg.subject)
	assert.Contains(t, msg.html, "Hello ada, your code is {{code}}")
}

func TestOrchestrator_DraftMode(t *testing.T) {
	t.Parallel()

	provider := &recordingProvider{}
	o := newOrchestrator(&stubTokens{}, provider, &countingFetcher{})

	res, err := o.Run(context.Background(), delivery.Batch{
		UserID:     uuid.New(),
		Subject:    "s",
		Body:       "b",
		Recipients: recipients("ada@example.com", "bob@example.com"),
		Mode:       delivery.ModeDraft,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)

	sent, drafts := provider.messages()
	assert.Empty(t, sent)
	assert.Len(t, drafts, 2)
}

func TestOrchestrator_DraftsUnsupportedAreRecordedPerRecipient(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(&stubTokens{}, &recordingProvider{noDrafts: true}, &countingFetcher{})
	res, err := o.Run(context.Background(), delivery.Batch{
		UserID:     uuid.New(),
		Subject:    "s",
		Body:       "b",
		Recipients: recipients("ada@example.com", "bob@example.com"),
		Mode:       delivery.ModeDraft,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.FailureCount)
	assert.Equal(t, mailer.ErrDraftUnsupported.Error(), res.Results[0].Error)
}

func TestOrchestrator_ReauthAbortsBeforeAnyRecipient(t *testing.T) {
	t.Parallel()

	provider := &recordingProvider{}
	fetcher := &countingFetcher{}
	o := newOrchestrator(&stubTokens{err: errRevoked}, provider, fetcher)

	res, err := o.Run(context.Background(), delivery.Batch{
		UserID:      uuid.New(),
		Subject:     "s",
		Body:        "b",
		Attachments: []mailer.Attachment{{Filename: "a.pdf", Key: "k"}},
		Recipients:  recipients("ada@example.com"),
		Mode:        delivery.ModeSend,
	})
	require.ErrorIs(t, err, credential.ErrReauthRequired)
	assert.Nil(t, res)

	sent, _ := provider.messages()
	assert.Empty(t, sent)
	assert.Zero(t, fetcher.calls.Load())
}

func TestOrchestrator_PrefetchesAttachmentsOnce(t *testing.T) {
	t.Parallel()

	provider := &recordingProvider{}
	fetcher := &countingFetcher{files: map[string][]byte{"u/report.pdf": []byte("%PDF")}}
	o := newOrchestrator(&stubTokens{}, provider, fetcher)

	res, err := o.Run(context.Background(), delivery.Batch{
		UserID:  uuid.New(),
		Subject: "s",
		Body:    "b",
		Attachments: []mailer.Attachment{
			{Filename: "report.pdf", ContentType: "application/pdf", Key: "u/report.pdf"},
			{Filename: "gone.pdf", ContentType: "application/pdf", Key: "u/gone.pdf"},
		},
		Recipients: recipients("ada@example.com", "bob@example.com", "cy@example.com"),
		Mode:       delivery.ModeSend,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.SuccessCount)
	assert.EqualValues(t, 2, fetcher.calls.Load())

	sent, _ := provider.messages()
	for _, raw := range sent {
		assert.Equal(t, []string{"report.pdf"}, parseMessage(t, raw).attachments)
	}
}

func TestOrchestrator_Cancellation(t *testing.T) {
	t.Parallel()

	provider := &recordingProvider{}
	o := newOrchestrator(&stubTokens{}, provider, &countingFetcher{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res, err := o.Run(ctx, delivery.Batch{
		UserID:     uuid.New(),
		Subject:    "s",
		Body:       "b",
		Recipients: recipients("a@example.com", "b@example.com", "c@example.com", "d@example.com"),
		Mode:       delivery.ModeSend,
		Pacing:     time.Hour,
		OnProgress: func(done, _ int) {
			if done == 1 {
				cancel()
			}
		},
	})
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Equal(t, 4, res.TotalRecipients)
	assert.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, 3, res.FailureCount)
	require.Len(t, res.Results, 4)
	assert.True(t, res.Results[0].Success)
	for _, rr := range res.Results[1:] {
		assert.Equal(t, "cancelled", rr.Error, rr.Email)
	}
	assert.Equal(t, "b@example.com", res.Results[1].Email)

	sent, _ := provider.messages()
	assert.Len(t, sent, 1)
}

func TestOrchestrator_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	provider := &recordingProvider{}
	o := newOrchestrator(&stubTokens{}, provider, &countingFetcher{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.Run(ctx, delivery.Batch{
		UserID:     uuid.New(),
		Subject:    "s",
		Body:       "b",
		Recipients: recipients("a@example.com", "b@example.com"),
		Mode:       delivery.ModeDraft,
		Pacing:     time.Hour,
	})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 2, res.FailureCount)
	_, drafts := provider.messages()
	assert.Empty(t, drafts)
}

func TestOrchestrator_AllFailuresIsNormalResult(t *testing.T) {
	t.Parallel()

	provider := &recordingProvider{reject: map[string]bool{"ada@example.com": true}}
	o := newOrchestrator(&stubTokens{}, provider, &countingFetcher{})

	res, err := o.Run(context.Background(), delivery.Batch{
		UserID:     uuid.New(),
		Subject:    "s",
		Body:       "b",
		Recipients: []sheet.Recipient{{Email: "ada@example.com"}, {Email: "not an address"}},
		Mode:       delivery.ModeSend,
		Pacing:     -1,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.SuccessCount)
	assert.Equal(t, 2, res.FailureCount)
	assert.Contains(t, res.Results[1].Error, mailer.ErrMessageBuild.Error())
}

func TestOrchestrator_RejectsUnknownMode(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(&stubTokens{}, &recordingProvider{}, &countingFetcher{})
	_, err := o.Run(context.Background(), delivery.Batch{Mode: "fax"})
	require.Error(t, err)
}
