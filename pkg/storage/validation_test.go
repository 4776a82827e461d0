package storage_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyanshudevsingh/quickmailer/pkg/storage"
)

func TestAttachmentRules(t *testing.T) {
	t.Parallel()

	const limit = 10 << 20

	tests := []struct {
		name     string
		upload   storage.Upload
		wantErr  error
		wantCode string
	}{
		{name: "pdf within limit", upload: storage.Upload{Filename: "invoice.pdf", Size: 2048}},
		{name: "uppercase extension", upload: storage.Upload{Filename: "PHOTO.JPEG", Size: 10}},
		{name: "exactly at limit", upload: storage.Upload{Filename: "list.csv", Size: limit}},
		{name: "empty", upload: storage.Upload{Filename: "a.txt"}, wantErr: storage.ErrEmptyFile, wantCode: storage.ErrCodeEmptyFile},
		{name: "over limit", upload: storage.Upload{Filename: "big.xlsx", Size: limit + 1}, wantErr: storage.ErrFileTooLarge, wantCode: storage.ErrCodeFileTooLarge},
		{name: "executable", upload: storage.Upload{Filename: "run.exe", Size: 5}, wantErr: storage.ErrInvalidType, wantCode: storage.ErrCodeInvalidType},
		{name: "no extension", upload: storage.Upload{Filename: "README", Size: 5}, wantErr: storage.ErrInvalidType, wantCode: storage.ErrCodeInvalidType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := storage.Validate(tt.upload, storage.AttachmentRules(limit)...)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)

			var verr *storage.FileValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantCode, verr.Code)
			assert.Equal(t, "file", verr.Field)
		})
	}
}

func TestAllowedExtensionsNormalizes(t *testing.T) {
	t.Parallel()

	rule := storage.AllowedExtensions("PDF", " .Txt ")
	assert.NoError(t, rule.Validate(storage.Upload{Filename: "a.pdf"}))
	assert.NoError(t, rule.Validate(storage.Upload{Filename: "b.TXT"}))
	assert.Error(t, rule.Validate(storage.Upload{Filename: "c.doc"}))
}

func TestContentTypeAndMajorType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		storage.ContentType("people.xlsx", []byte("PK\x03\x04")))
	assert.Equal(t, "image/gif", storage.ContentType("anim", []byte("GIF89a....")))
	assert.Equal(t, storage.MIMEOctetStream, storage.ContentType("blob", nil))

	assert.Equal(t, "image", storage.MajorType("image/png"))
	assert.Equal(t, "text", storage.MajorType("text/csv; charset=utf-8"))
	assert.Equal(t, "application", storage.MajorType(""))
	assert.Equal(t, ".pdf", storage.ExtFromMIME("application/pdf"))
}
