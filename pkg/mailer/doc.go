// Package mailer builds and delivers email.
//
// It has two halves that share types and errors:
//
//   - Builder assembles raw RFC 2822 messages for mailbox providers that take
//     base64url encoded mail (Gmail API, SMTP relay). Bodies are cleaned with
//     the sanitizer, wrapped in a small HTML document with baseline link
//     styling, and quoted-printable encoded. Attachments turn the message into
//     multipart/mixed with base64 parts.
//   - Mailer renders markdown notification templates with YAML frontmatter and
//     hands them to a transactional Sender such as Resend.
//
// # Raw messages
//
//	b := mailer.NewBuilder(
//		mailer.WithFetcher(store),
//		mailer.WithBuilderLogger(log),
//	)
//
//	raw, err := b.Build(ctx, mailer.Message{
//		To:      "ann@example.com",
//		Subject: "Quarterly update",
//		HTML:    "<p>Hello Ann</p>",
//		Attachments: []mailer.Attachment{
//			{Filename: "report.pdf", ContentType: "application/pdf", Key: "user/report.pdf"},
//		},
//	})
//
// An attachment whose bytes cannot be fetched is skipped with a warning.
// ErrMessageBuild is returned only when the message itself cannot be
// assembled, for example when the recipient is empty or contains a line break.
//
// For batches, call Prefetch once and pass the loaded attachments to every
// Build call so storage is read a single time.
//
// # Providers
//
// Provider implementations live in subpackages: gmail (Gmail API send and
// drafts) and smtp (plain SMTP relay, no drafts). Both wrap failures with
// ErrProviderCall.
//
// # Notifications
//
//	renderer := mailer.NewRenderer(templatesFS)
//	m := mailer.New(resend.New(cfg), renderer, mailer.Config{DefaultLayout: "base.html"})
//
//	err := m.Send(ctx, mailer.SendParams{
//		To:       "ann@example.com",
//		Template: "bulk_report.md",
//		Data:     report,
//	})
//
// Subject resolution: SendParams.Subject, then the "subject" frontmatter key,
// then Config.FallbackSubject. Subjects are processed with text/template.
//
// MarkdownToHTML converts markdown without template processing and is used to
// import saved templates whose {{name}} placeholders must survive untouched.
package mailer
