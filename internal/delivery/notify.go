package delivery

import (
	"context"
	"embed"
	"io/fs"

	"github.com/google/uuid"

	"github.com/priyanshudevsingh/quickmailer/internal/user"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer"
)

//go:embed templates
var templatesFS embed.FS

// NotificationTemplates returns the notification templates with layouts under
// "layouts".
func NotificationTemplates() fs.FS {
	sub, _ := fs.Sub(templatesFS, "templates")
	return sub
}

// Notifier tells the owner that a background run finished.
type Notifier interface {
	RunFinished(ctx context.Context, run *Run) error
}

type nopNotifier struct{}

func (nopNotifier) RunFinished(context.Context, *Run) error { return nil }

// Users looks up account details for notifications.
type Users interface {
	Get(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// ReportNotifier mails a run summary to its owner through a transactional
// mailer.
type ReportNotifier struct {
	mailer *mailer.Mailer
	users  Users
}

// NewReportNotifier creates a ReportNotifier.
func NewReportNotifier(m *mailer.Mailer, users Users) *ReportNotifier {
	return &ReportNotifier{mailer: m, users: users}
}

type reportData struct {
	Name     string
	Run      *Run
	Verb     string
	Failures []RecipientResult
}

const maxReportedFailures = 20

func (n *ReportNotifier) RunFinished(ctx context.Context, run *Run) error {
	u, err := n.users.Get(ctx, run.UserID)
	if err != nil {
		return err
	}

	data := reportData{Name: u.Name, Run: run, Verb: "sent"}
	if run.Mode == ModeDraft {
		data.Verb = "saved as drafts"
	}
	if run.Result != nil {
		for _, r := range run.Result.Results {
			if !r.Success && len(data.Failures) < maxReportedFailures {
				data.Failures = append(data.Failures, r)
			}
		}
	}

	return n.mailer.Send(ctx, mailer.SendParams{
		To:       mailer.Recipient(u.Name, u.Email),
		Template: "bulk_report.md",
		Data:     data,
		Tags:     mailer.Tags{"category": "bulk-run", "status": string(run.Status)},
	})
}
