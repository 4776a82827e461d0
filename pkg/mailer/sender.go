package mailer

import "context"

// Sender delivers transactional notifications such as bulk run reports.
type Sender interface {
	// Send delivers an email message.
	// The Email must have To, Subject, and HTML already set.
	Send(ctx context.Context, email *Email) error
}

// Provider delivers raw RFC 2822 messages through the user's own mailbox.
// raw is the base64url encoded message produced by Builder.Build.
// Both methods return the provider message or draft ID.
// Failures wrap ErrProviderCall.
type Provider interface {
	Send(ctx context.Context, accessToken, raw string) (string, error)
	CreateDraft(ctx context.Context, accessToken, raw string) (string, error)
}
