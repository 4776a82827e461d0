package attachment

import (
	"context"
	"log/slog"
)

const purgeBatch = 100

// PurgeTask retries byte purges for deleted attachments.
type PurgeTask struct {
	svc *Service
}

// NewPurgeTask creates the periodic purge task.
func NewPurgeTask(svc *Service) *PurgeTask {
	return &PurgeTask{svc: svc}
}

func (t *PurgeTask) Name() string     { return "attachment_purge" }
func (t *PurgeTask) Schedule() string { return "*/15 * * * *" }

// Handle purges one batch of pending attachments. Individual failures are
// logged and retried on the next run.
func (t *PurgeTask) Handle(ctx context.Context) error {
	pending, err := t.svc.repo.PendingPurge(ctx, purgeBatch)
	if err != nil {
		return err
	}

	purged := 0
	for _, a := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if t.svc.purge(ctx, a) {
			purged++
		}
	}
	if len(pending) > 0 {
		t.svc.logger.InfoContext(ctx, "attachment purge run",
			slog.Int("pending", len(pending)),
			slog.Int("purged", purged))
	}
	return nil
}
