package delivery_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/riverqueue/river/rivertype"

	"github.com/priyanshudevsingh/quickmailer/internal/apperr"
	"github.com/priyanshudevsingh/quickmailer/internal/credential"
	"github.com/priyanshudevsingh/quickmailer/internal/delivery"
	"github.com/priyanshudevsingh/quickmailer/internal/template"
	"github.com/priyanshudevsingh/quickmailer/pkg/job"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer"
)

type stubTokens struct {
	err   error
	calls atomic.Int32
}

func (s *stubTokens) EnsureValid(context.Context, uuid.UUID) (string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return "ya29.token", nil
}

var errMailbox = errors.New("mailbox full")

// recordingProvider captures decoded messages and fails recipients listed
// in reject.
type recordingProvider struct {
	mu       sync.Mutex
	reject   map[string]bool
	noDrafts bool
	sent     []string
	drafts   []string
}

func (p *recordingProvider) handle(raw string, into *[]string) (string, error) {
	msg, err := mailer.DecodeRaw(raw)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for addr := range p.reject {
		if strings.Contains(string(msg), "To: "+addr) {
			return "", errors.Join(mailer.ErrProviderCall, errMailbox)
		}
	}
	*into = append(*into, string(msg))
	return "msg-" + uuid.NewString()[:8], nil
}

func (p *recordingProvider) Send(_ context.Context, token, raw string) (string, error) {
	if token == "" {
		return "", errors.New("no token")
	}
	return p.handle(raw, &p.sent)
}

func (p *recordingProvider) CreateDraft(_ context.Context, _, raw string) (string, error) {
	if p.noDrafts {
		return "", mailer.ErrDraftUnsupported
	}
	return p.handle(raw, &p.drafts)
}

func (p *recordingProvider) messages() (sent, drafts []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...), append([]string(nil), p.drafts...)
}

type countingFetcher struct {
	calls atomic.Int32
	files map[string][]byte
}

func (f *countingFetcher) Fetch(_ context.Context, key string) ([]byte, error) {
	f.calls.Add(1)
	if b, ok := f.files[key]; ok {
		return b, nil
	}
	return nil, errors.New("no such key")
}

type stubTemplates map[uuid.UUID]*template.Template

func (s stubTemplates) Get(_ context.Context, owner, id uuid.UUID) (*template.Template, error) {
	t, ok := s[id]
	if !ok || t.UserID != owner {
		return nil, apperr.NotFound("template")
	}
	cp := *t
	return &cp, nil
}

type stubAttachments map[uuid.UUID]mailer.Attachment

func (s stubAttachments) Resolve(_ context.Context, _ uuid.UUID, ids []uuid.UUID) ([]mailer.Attachment, error) {
	var out []mailer.Attachment
	for _, id := range ids {
		if a, ok := s[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

type counters struct {
	mu           sync.Mutex
	sent, drafts int
}

func (c *counters) RecordDeliveries(_ context.Context, _ uuid.UUID, sent, drafts int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent += sent
	c.drafts += drafts
	return nil
}

func (c *counters) get() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent, c.drafts
}

type enqueued struct {
	name    string
	payload any
}

type fakeJobs struct {
	mu        sync.Mutex
	jobs      []enqueued
	cancelled []int64
	state     rivertype.JobState
	err       error
}

func (j *fakeJobs) Enqueue(_ context.Context, name string, payload any, _ ...job.EnqueueOption) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return 0, j.err
	}
	j.jobs = append(j.jobs, enqueued{name: name, payload: payload})
	return int64(len(j.jobs)), nil
}

func (j *fakeJobs) Cancel(_ context.Context, id int64) (rivertype.JobState, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancelled = append(j.cancelled, id)
	if j.state == "" {
		return rivertype.JobStateCancelled, nil
	}
	return j.state, nil
}

type memRuns struct {
	mu       sync.Mutex
	runs     map[uuid.UUID]*delivery.Run
	payloads map[uuid.UUID]delivery.RunPayload
	progress []int
}

func newMemRuns() *memRuns {
	return &memRuns{runs: map[uuid.UUID]*delivery.Run{}, payloads: map[uuid.UUID]delivery.RunPayload{}}
}

func (m *memRuns) CreateRun(_ context.Context, run *delivery.Run, p delivery.RunPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *run
	m.runs[run.ID] = &cp
	m.payloads[run.ID] = p
	return nil
}

func (m *memRuns) SetJobID(_ context.Context, id uuid.UUID, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[id].JobID = jobID
	return nil
}

func (m *memRuns) GetRun(_ context.Context, owner, id uuid.UUID) (*delivery.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || r.UserID != owner {
		return nil, delivery.ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRuns) LoadRun(_ context.Context, id uuid.UUID) (*delivery.Run, delivery.RunPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, delivery.RunPayload{}, delivery.ErrRunNotFound
	}
	cp := *r
	return &cp, m.payloads[id], nil
}

func (m *memRuns) StartRun(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[id]
	if r.Status != delivery.RunQueued {
		return false, nil
	}
	r.Status = delivery.RunRunning
	return true, nil
}

func (m *memRuns) UpdateProgress(_ context.Context, id uuid.UUID, processed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[id].Processed = processed
	m.progress = append(m.progress, processed)
	return nil
}

func (m *memRuns) FinishRun(_ context.Context, id uuid.UUID, status delivery.RunStatus, res *delivery.BulkResult, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[id]
	if r.Status.Terminal() {
		return nil
	}
	r.Status = status
	r.Result = res
	r.Error = msg
	if res != nil {
		r.Processed = res.TotalRecipients
		r.SuccessCount = res.SuccessCount
		r.FailureCount = res.FailureCount
	}
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	runs []delivery.Run
}

func (n *recordingNotifier) RunFinished(_ context.Context, run *delivery.Run) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, *run)
	return nil
}

var errRevoked = errors.Join(credential.ErrReauthRequired, errors.New("invalid_grant"))
