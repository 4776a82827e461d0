package mailer

import "fmt"

// Tags represents email tags/categories that can be either presence-only
// (using struct{}{}) or key-value pairs (using string values).
// Resend uses name-value pairs; presence-only tags become name="true".
type Tags map[string]any

// SimpleTags creates presence-only tags from a list of tag names.
func SimpleTags(names ...string) Tags {
	t := make(Tags, len(names))
	for _, n := range names {
		t[n] = struct{}{}
	}
	return t
}

// Recipient formats a name and email into RFC 5322 address format.
// Returns "Name <email>" if name is provided, otherwise just email.
func Recipient(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

// Email is a notification sent through a transactional Sender.
type Email struct {
	Tags    Tags     // Provider-specific tags/categories
	Subject string   // Email subject
	HTML    string   // HTML body content
	Text    string   // Plain text alternative
	From    string   // Override default sender (if provider allows)
	ReplyTo string   // Reply-to address
	To      []string // Recipients (at least one required)
}

// Attachment is a file attached to an outgoing message.
// Content wins over Key; when Content is nil the bytes are fetched by Key.
type Attachment struct {
	Filename    string // Display name for the attachment
	ContentType string // MIME type (e.g., "application/pdf")
	Key         string // Storage key used to fetch Content
	Content     []byte // Raw file content
}

// Loaded reports whether the attachment bytes are already in memory.
func (a Attachment) Loaded() bool {
	return a.Content != nil
}

// Message is a single outgoing mailbox message before encoding.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Attachments []Attachment
}
