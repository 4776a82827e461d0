package handlers_test

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyanshudevsingh/quickmailer/internal/apperr"
	"github.com/priyanshudevsingh/quickmailer/internal/delivery"
	"github.com/priyanshudevsingh/quickmailer/internal/handlers"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer"
)

type fakeDelivery struct {
	mu        sync.Mutex
	sends     []delivery.SendRequest
	bulk      delivery.BulkRequest
	sheet     string
	sendErr   error
	runs      map[uuid.UUID]*delivery.Run
	cancelled []uuid.UUID
}

func newFakeDelivery() *fakeDelivery {
	return &fakeDelivery{runs: map[uuid.UUID]*delivery.Run{}}
}

func (f *fakeDelivery) Send(_ context.Context, _ uuid.UUID, req delivery.SendRequest) (*delivery.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sends = append(f.sends, req)
	typ := req.Type
	if typ == "" {
		typ = delivery.SendImmediate
	}
	return &delivery.SendResult{Success: true, MessageID: "m-1", Type: typ, To: req.To, Subject: req.Subject}, nil
}

func (f *fakeDelivery) capture(req delivery.BulkRequest) error {
	f.bulk = req
	if req.Sheet == nil {
		return apperr.Validation("recipient sheet is required")
	}
	data, err := io.ReadAll(req.Sheet)
	f.sheet = string(data)
	return err
}

func (f *fakeDelivery) Bulk(_ context.Context, _ uuid.UUID, req delivery.BulkRequest) (*delivery.BulkResult, error) {
	if err := f.capture(req); err != nil {
		return nil, err
	}
	return &delivery.BulkResult{TotalRecipients: 2, SuccessCount: 2}, nil
}

func (f *fakeDelivery) EnqueueBulk(_ context.Context, _ uuid.UUID, req delivery.BulkRequest) (*delivery.Run, error) {
	if err := f.capture(req); err != nil {
		return nil, err
	}
	run := &delivery.Run{ID: uuid.New(), UserID: owner.ID, TemplateID: req.TemplateID, Mode: req.Mode, Status: delivery.RunQueued, Total: 2}
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeDelivery) GetRun(_ context.Context, _ uuid.UUID, id uuid.UUID) (*delivery.Run, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, apperr.NotFound("bulk run")
	}
	return run, nil
}

func (f *fakeDelivery) CancelRun(ctx context.Context, o, id uuid.UUID) (*delivery.Run, error) {
	run, err := f.GetRun(ctx, o, id)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return nil, apperr.Conflict("bulk run already %s", run.Status)
	}
	f.cancelled = append(f.cancelled, id)
	run.Status = delivery.RunCancelled
	return run, nil
}

const sheetCSV = "email,name\nada@example.com,Ada\nbob@example.com,Bob\n"

func TestEmailHandlerSend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		target   string
		body     string
		wantType delivery.SendType
		wantMsg  string
	}{
		{
			name:     "immediate",
			target:   "/api/email/send",
			body:     `{"to":"bob@example.com","subject":"Hi","body":"<p>Hi</p>"}`,
			wantType: "",
			wantMsg:  "Email sent successfully",
		},
		{
			name:     "scheduled",
			target:   "/api/email/send",
			body:     `{"to":"bob@example.com","subject":"Hi","body":"x","type":"scheduled","scheduledAt":"2030-01-02T15:04:05Z"}`,
			wantType: delivery.SendScheduled,
			wantMsg:  "Email scheduled successfully",
		},
		{
			name:     "draft route forces draft",
			target:   "/api/email/draft",
			body:     `{"to":"bob@example.com","subject":"Hi","body":"x","type":"immediate"}`,
			wantType: delivery.SendDraft,
			wantMsg:  "Draft created successfully",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := newFakeDelivery()
			srv := newServer(handlers.NewEmailHandler(svc, 1<<20, guard()))

			rec := serve(srv, jsonRequest(http.MethodPost, tt.target, tt.body))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantMsg, decode(t, rec).Message)

			require.Len(t, svc.sends, 1)
			assert.Equal(t, "bob@example.com", svc.sends[0].To)
			assert.Equal(t, tt.wantType, svc.sends[0].Type)
		})
	}
}

func TestEmailHandlerSendErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "validation", err: apperr.Validation("invalid recipient email"), wantStatus: 400, wantCode: "validation_error"},
		{name: "drafts unsupported", err: mailer.ErrDraftUnsupported, wantStatus: 501, wantCode: "drafts_unsupported"},
		{name: "provider", err: mailer.ErrProviderCall, wantStatus: 502, wantCode: "provider_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := newFakeDelivery()
			svc.sendErr = tt.err
			srv := newServer(handlers.NewEmailHandler(svc, 1<<20, guard()))

			rec := serve(srv, jsonRequest(http.MethodPost, "/api/email/send", `{"to":"x"}`))
			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decode(t, rec).Code)
		})
	}
}

func TestEmailHandlerMass(t *testing.T) {
	t.Parallel()

	tmplID := uuid.New()
	a1, a2 := uuid.New(), uuid.New()

	tests := []struct {
		name     string
		target   string
		fields   map[string]string
		field    string
		wantMode delivery.Mode
		wantIDs  []uuid.UUID
	}{
		{
			name:     "send with json ids",
			target:   "/api/email/mass-send",
			fields:   map[string]string{"templateId": tmplID.String(), "attachmentIds": `["` + a1.String() + `","` + a2.String() + `"]`},
			field:    "file",
			wantMode: delivery.ModeSend,
			wantIDs:  []uuid.UUID{a1, a2},
		},
		{
			name:     "draft with legacy field and csv ids",
			target:   "/api/email/mass-draft",
			fields:   map[string]string{"templateId": tmplID.String(), "attachmentIds": a1.String() + ", " + a2.String()},
			field:    "excelFile",
			wantMode: delivery.ModeDraft,
			wantIDs:  []uuid.UUID{a1, a2},
		},
		{
			name:     "no attachments",
			target:   "/api/email/mass-send",
			fields:   map[string]string{"templateId": tmplID.String()},
			field:    "file",
			wantMode: delivery.ModeSend,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := newFakeDelivery()
			srv := newServer(handlers.NewEmailHandler(svc, 1<<20, guard()))

			body, ct := multipartBody(t, tt.fields, formFile{field: tt.field, name: "recipients.csv", content: []byte(sheetCSV)})
			rec := serve(srv, request(http.MethodPost, tt.target, body, ct))

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Contains(t, string(decode(t, rec).Data), `"successCount":2`)
			assert.Equal(t, tt.wantMode, svc.bulk.Mode)
			assert.Equal(t, tmplID, svc.bulk.TemplateID)
			assert.Equal(t, tt.wantIDs, svc.bulk.AttachmentIDs)
			assert.Equal(t, sheetCSV, svc.sheet)
		})
	}
}

func TestEmailHandlerMassErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fields  map[string]string
		file    bool
		wantMsg string
	}{
		{name: "bad template id", fields: map[string]string{"templateId": "nope"}, file: true, wantMsg: "invalid templateId"},
		{name: "bad attachment ids", fields: map[string]string{"templateId": uuid.NewString(), "attachmentIds": "[1,2"}, file: true, wantMsg: "invalid attachmentIds format, expected a JSON array"},
		{name: "missing sheet", fields: map[string]string{"templateId": uuid.NewString()}, wantMsg: "recipient sheet is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newServer(handlers.NewEmailHandler(newFakeDelivery(), 1<<20, guard()))
			var files []formFile
			if tt.file {
				files = append(files, formFile{field: "file", name: "r.csv", content: []byte(sheetCSV)})
			}
			body, ct := multipartBody(t, tt.fields, files...)
			rec := serve(srv, request(http.MethodPost, "/api/email/mass-send", body, ct))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantMsg, decode(t, rec).Error)
		})
	}

	t.Run("not multipart", func(t *testing.T) {
		t.Parallel()
		srv := newServer(handlers.NewEmailHandler(newFakeDelivery(), 1<<20, guard()))
		rec := serve(srv, jsonRequest(http.MethodPost, "/api/email/mass-send", `{}`))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "expected a multipart form", decode(t, rec).Error)
	})
}

func TestBulkRunRoutes(t *testing.T) {
	t.Parallel()

	svc := newFakeDelivery()
	srv := newServer(handlers.NewEmailHandler(svc, 1<<20, guard()))

	tmplID := uuid.New()
	body, ct := multipartBody(t, map[string]string{"templateId": tmplID.String(), "mode": "Draft"},
		formFile{field: "file", name: "r.csv", content: []byte(sheetCSV)})
	rec := serve(srv, request(http.MethodPost, "/api/bulk-runs", body, ct))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, delivery.ModeDraft, svc.bulk.Mode)

	require.Len(t, svc.runs, 1)
	var runID uuid.UUID
	for id := range svc.runs {
		runID = id
	}

	rec = serve(srv, request(http.MethodGet, "/api/bulk-runs/"+runID.String(), nil, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decode(t, rec).Data), `"status":"queued"`)

	rec = serve(srv, request(http.MethodPost, "/api/bulk-runs/"+runID.String()+"/cancel", nil, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{runID}, svc.cancelled)

	rec = serve(srv, request(http.MethodPost, "/api/bulk-runs/"+runID.String()+"/cancel", nil, ""))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(srv, request(http.MethodGet, "/api/bulk-runs/"+uuid.NewString(), nil, ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
