package mailer

import "errors"

var (
	// ErrNoRecipient indicates no recipient was specified.
	ErrNoRecipient = errors.New("email must have at least one recipient")

	// ErrNoSubject indicates no subject was provided.
	ErrNoSubject = errors.New("email must have a subject")

	// ErrNoContent indicates no HTML content was provided.
	ErrNoContent = errors.New("email must have HTML content")

	// ErrTemplateNotFound indicates the template file was not found.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrLayoutNotFound indicates the layout file was not found.
	ErrLayoutNotFound = errors.New("layout not found")

	// ErrRenderFailed indicates template rendering failed.
	ErrRenderFailed = errors.New("failed to render template")

	// ErrSendFailed indicates email sending failed.
	ErrSendFailed = errors.New("failed to send email")

	// ErrInvalidFrontmatter indicates invalid YAML frontmatter.
	ErrInvalidFrontmatter = errors.New("invalid frontmatter")

	// ErrMessageBuild indicates a raw message could not be assembled.
	// Missing attachment bytes never produce it.
	ErrMessageBuild = errors.New("failed to build message")

	// ErrProviderCall indicates the mail provider rejected or failed a send or draft call.
	ErrProviderCall = errors.New("mail provider call failed")

	// ErrTokenRejected indicates the provider refused the user's access
	// token. The user has to sign in again.
	ErrTokenRejected = errors.New("mail provider rejected the access token")

	// ErrDraftUnsupported indicates the provider cannot store drafts.
	ErrDraftUnsupported = errors.New("provider does not support drafts")
)
