package storage

import (
	"bytes"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

// MIME type constants.
const (
	MIMEOctetStream    = "application/octet-stream"
	mimeDetectionBytes = 512 // http.DetectContentType looks at most at 512 bytes
)

// extensionTypes maps the attachment extensions to their MIME types.
// Office formats are zip or OLE containers that sniffing reports generically,
// so the extension decides for them.
var extensionTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

var mimeExtensions = map[string]string{
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"text/plain": ".txt",
	"text/csv":   ".csv",
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// ExtFromMIME returns the file extension for a MIME type.
// Returns empty string if MIME type is unknown.
func ExtFromMIME(mimeType string) string {
	return mimeExtensions[normalizeMIME(mimeType)]
}

// Ext returns the lowercased extension of name including the dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// ContentType resolves the MIME type of an upload. A known extension wins;
// otherwise head is sniffed.
func ContentType(filename string, head []byte) string {
	if ct, ok := extensionTypes[Ext(filename)]; ok {
		return ct
	}
	if len(head) == 0 {
		return MIMEOctetStream
	}
	return normalizeMIME(http.DetectContentType(head))
}

// MajorType returns the top-level MIME type ("image" for "image/png").
func MajorType(mimeType string) string {
	major, _, _ := strings.Cut(normalizeMIME(mimeType), "/")
	if major == "" {
		return "application"
	}
	return major
}

// sniff reads the leading bytes of r and returns them together with a
// seekable reader over the whole content. The AWS SDK needs io.ReadSeeker
// to compute the payload hash.
func sniff(r io.Reader) ([]byte, io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		head := make([]byte, mimeDetectionBytes)
		n, err := io.ReadFull(rs, head)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return nil, nil, err
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, nil, err
		}
		return head[:n], rs, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	return data[:min(len(data), mimeDetectionBytes)], bytes.NewReader(data), nil
}

// normalizeMIME strips parameters such as charset and lowercases the type.
func normalizeMIME(mimeType string) string {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	return strings.TrimSpace(strings.ToLower(mimeType))
}
