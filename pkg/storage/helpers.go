package storage

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// PutFile uploads a multipart file header to storage. The original file name
// drives validation and the key extension.
func PutFile(ctx context.Context, s Storage, fh *multipart.FileHeader, opts ...Option) (*FileInfo, error) {
	if fh == nil || fh.Size == 0 {
		return nil, ErrEmptyFile
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open file: %w", err)
	}
	defer f.Close()

	opts = append([]Option{WithFilename(fh.Filename)}, opts...)
	return s.Put(ctx, f, fh.Size, opts...)
}

// ReadAll loads the whole object stored under key.
func ReadAll(ctx context.Context, s Storage, key string) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// prepare sniffs r, resolves the content type, runs the validation rules
// and picks the key.
func prepare(r io.Reader, size int64, o *putOptions) (io.ReadSeeker, string, string, error) {
	head, body, err := sniff(r)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: read input: %v", ErrUploadFailed, err)
	}

	contentType := o.contentType
	if contentType == "" {
		contentType = ContentType(o.filename, head)
	}

	if err := Validate(Upload{Filename: o.filename, ContentType: contentType, Size: size}, o.rules...); err != nil {
		return nil, "", "", err
	}

	key := o.key
	if key == "" {
		key = buildKey(o.prefix, o.filename, contentType)
	}
	return body, contentType, key, nil
}

// buildKey constructs "{prefix}/{uuid}{ext}". The file name extension wins
// over the one derived from contentType.
func buildKey(prefix, filename, contentType string) string {
	ext := Ext(filename)
	if ext == "" || !safeExt.MatchString(ext) {
		ext = ExtFromMIME(contentType)
	}
	if ext == "" {
		ext = ".bin"
	}

	name := uuid.NewString() + ext
	if prefix = sanitizePathSegment(prefix); prefix != "" {
		return path.Join(prefix, name)
	}
	return name
}

var (
	pathSegmentRegex = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)
	safeExt          = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)
)

// sanitizePathSegment keeps a prefix inside its own directory.
func sanitizePathSegment(segment string) string {
	segment = strings.Trim(segment, " /\\")
	segment = strings.ReplaceAll(segment, "..", "")
	return pathSegmentRegex.ReplaceAllString(segment, "_")
}
