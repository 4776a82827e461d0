package attachment_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"slices"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyanshudevsingh/quickmailer/internal/apperr"
	"github.com/priyanshudevsingh/quickmailer/internal/attachment"
	"github.com/priyanshudevsingh/quickmailer/pkg/storage"
)

type memRepo struct {
	mu   sync.Mutex
	rows []*attachment.Attachment
}

func (m *memRepo) List(_ context.Context, owner uuid.UUID) ([]*attachment.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*attachment.Attachment
	for _, a := range slices.Backward(m.rows) {
		if a.UserID == owner && a.IsActive {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) Get(_ context.Context, owner, id uuid.UUID) (*attachment.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.ID == id && a.UserID == owner && a.IsActive {
			cp := *a
			return &cp, nil
		}
	}
	return nil, attachment.ErrNotFound
}

func (m *memRepo) GetMany(ctx context.Context, owner uuid.UUID, ids []uuid.UUID) ([]*attachment.Attachment, error) {
	var out []*attachment.Attachment
	for _, id := range ids {
		if a, err := m.Get(ctx, owner, id); err == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) Create(_ context.Context, a *attachment.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memRepo) Deactivate(_ context.Context, owner, id uuid.UUID) (*attachment.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.ID == id && a.UserID == owner && a.IsActive {
			a.IsActive = false
			cp := *a
			return &cp, nil
		}
	}
	return nil, attachment.ErrNotFound
}

func (m *memRepo) MarkPurged(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.ID == id {
			a.Purged = true
		}
	}
	return nil
}

func (m *memRepo) PendingPurge(_ context.Context, limit int) ([]*attachment.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*attachment.Attachment
	for _, a := range m.rows {
		if !a.IsActive && !a.Purged && len(out) < limit {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) row(id uuid.UUID) attachment.Attachment {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.rows {
		if a.ID == id {
			return *a
		}
	}
	return attachment.Attachment{}
}

// flakyStore fails deletes while broken is set.
type flakyStore struct {
	storage.Storage
	mu     sync.Mutex
	broken bool
}

func (f *flakyStore) setBroken(b bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broken = b
}

func (f *flakyStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	broken := f.broken
	f.mu.Unlock()
	if broken {
		return errors.New("bucket unavailable")
	}
	return f.Storage.Delete(ctx, key)
}

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["file"][0]
}

func newService(t *testing.T, opts ...attachment.Option) (*attachment.Service, *memRepo, *flakyStore) {
	t.Helper()

	disk, err := storage.NewDisk(t.TempDir())
	require.NoError(t, err)
	store := &flakyStore{Storage: disk}
	repo := &memRepo{}
	return attachment.NewService(repo, store, opts...), repo, store
}

func TestUpload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	owner := uuid.New()

	t.Run("stores file and row", func(t *testing.T) {
		t.Parallel()

		svc, _, _ := newService(t)
		a, err := svc.Upload(ctx, owner, fileHeader(t, "report.pdf", []byte("%PDF-1.4 body")))
		require.NoError(t, err)
		assert.Equal(t, "report.pdf", a.OriginalName)
		assert.Equal(t, "application/pdf", a.MimeType)
		assert.EqualValues(t, 13, a.Size)
		assert.Contains(t, a.StorageKey, owner.String()+"/")

		data, err := svc.Fetch(ctx, a.StorageKey)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4 body", string(data))
	})

	tests := []struct {
		name    string
		file    string
		content []byte
	}{
		{name: "disallowed extension", file: "run.exe", content: []byte("MZ")},
		{name: "empty file", file: "empty.txt", content: nil},
		{name: "too large", file: "big.txt", content: bytes.Repeat([]byte("x"), 2048)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, repo, _ := newService(t, attachment.WithMaxSize(1024))
			_, err := svc.Upload(ctx, owner, fileHeader(t, tt.file, tt.content))
			require.ErrorIs(t, err, apperr.ErrValidation)
			assert.Empty(t, repo.rows)
		})
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	owner := uuid.New()

	t.Run("purges bytes", func(t *testing.T) {
		t.Parallel()

		svc, repo, _ := newService(t)
		a, err := svc.Upload(ctx, owner, fileHeader(t, "notes.txt", []byte("hello")))
		require.NoError(t, err)

		require.NoError(t, svc.Delete(ctx, owner, a.ID))
		assert.True(t, repo.row(a.ID).Purged)

		_, err = svc.Fetch(ctx, a.StorageKey)
		require.ErrorIs(t, err, storage.ErrNotFound)

		_, err = svc.Get(ctx, owner, a.ID)
		require.ErrorIs(t, err, apperr.ErrNotFound)
		require.ErrorIs(t, svc.Delete(ctx, owner, a.ID), apperr.ErrNotFound)
	})

	t.Run("purge failure leaves row for the purge task", func(t *testing.T) {
		t.Parallel()

		svc, repo, store := newService(t)
		a, err := svc.Upload(ctx, owner, fileHeader(t, "notes.txt", []byte("hello")))
		require.NoError(t, err)

		store.setBroken(true)
		require.NoError(t, svc.Delete(ctx, owner, a.ID))
		assert.False(t, repo.row(a.ID).Purged)

		task := attachment.NewPurgeTask(svc)
		require.NoError(t, task.Handle(ctx))
		assert.False(t, repo.row(a.ID).Purged)

		store.setBroken(false)
		require.NoError(t, task.Handle(ctx))
		assert.True(t, repo.row(a.ID).Purged)
	})
}

func TestPurgeTaskSchedule(t *testing.T) {
	t.Parallel()

	task := attachment.NewPurgeTask(nil)
	assert.Equal(t, "attachment_purge", task.Name())
	assert.Equal(t, "*/15 * * * *", task.Schedule())
}

func TestStats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	owner := uuid.New()
	svc, _, _ := newService(t)

	_, err := svc.Upload(ctx, owner, fileHeader(t, "a.png", bytes.Repeat([]byte("p"), 1<<20)))
	require.NoError(t, err)
	_, err = svc.Upload(ctx, owner, fileHeader(t, "b.jpg", bytes.Repeat([]byte("j"), 1<<19)))
	require.NoError(t, err)
	doc, err := svc.Upload(ctx, owner, fileHeader(t, "c.csv", []byte("email\n")))
	require.NoError(t, err)
	gone, err := svc.Upload(ctx, owner, fileHeader(t, "d.txt", []byte("bye")))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, owner, gone.ID))

	st, err := svc.Stats(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.EqualValues(t, 1<<20+1<<19+doc.Size, st.TotalSize)
	assert.InDelta(t, 1.5, st.TotalSizeMB, 0.001)
	assert.Equal(t, attachment.TypeStats{Count: 2, Size: 1<<20 + 1<<19}, st.ByType["image"])
	assert.Equal(t, 1, st.ByType["text"].Count)
}

func TestOpenAndResolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	owner := uuid.New()
	svc, _, _ := newService(t)

	a, err := svc.Upload(ctx, owner, fileHeader(t, "notes.txt", []byte("hello")))
	require.NoError(t, err)
	b, err := svc.Upload(ctx, owner, fileHeader(t, "logo.png", []byte("\x89PNG")))
	require.NoError(t, err)
	foreign, err := svc.Upload(ctx, uuid.New(), fileHeader(t, "x.txt", []byte("x")))
	require.NoError(t, err)

	rc, got, err := svc.Open(ctx, owner, a.ID)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, "notes.txt", got.OriginalName)

	_, _, err = svc.Open(ctx, owner, foreign.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	resolved, err := svc.Resolve(ctx, owner, []uuid.UUID{b.ID, foreign.ID, uuid.New(), a.ID})
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Equal(t, "logo.png", resolved[0].Filename)
	assert.Equal(t, "image/png", resolved[0].ContentType)
	assert.Equal(t, b.StorageKey, resolved[0].Key)
	assert.False(t, resolved[0].Loaded())
	assert.Equal(t, "notes.txt", resolved[1].Filename)

	none, err := svc.Resolve(ctx, owner, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
