package storage

import (
	"fmt"
	"slices"
	"strings"
)

// Upload describes a file about to be stored.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
}

// FileValidationError represents a file validation failure.
type FileValidationError struct {
	Details map[string]any // Error-specific data
	Field   string         // Form field name (e.g., "file")
	Code    string         // Error code (e.g., "file_too_large")
	Message string         // Human-readable message
	err     error
}

// Error implements the error interface.
func (e *FileValidationError) Error() string {
	return e.Message
}

// Unwrap exposes the matching sentinel so callers can use errors.Is.
func (e *FileValidationError) Unwrap() error {
	return e.err
}

// Error codes for FileValidationError.
const (
	ErrCodeFileTooLarge = "file_too_large"
	ErrCodeInvalidType  = "invalid_type"
	ErrCodeEmptyFile    = "empty_file"
)

// AttachmentExtensions lists the extensions accepted for email attachments.
var AttachmentExtensions = []string{
	".pdf", ".doc", ".docx", ".txt", ".jpg", ".jpeg", ".png", ".gif", ".xls", ".xlsx", ".csv",
}

// ValidationRule defines a validation check for file uploads.
type ValidationRule interface {
	Validate(u Upload) error
}

// RuleFunc adapts a function to ValidationRule.
type RuleFunc func(u Upload) error

// Validate implements ValidationRule.
func (f RuleFunc) Validate(u Upload) error { return f(u) }

// Validate runs rules in order and returns the first failure.
func Validate(u Upload, rules ...ValidationRule) error {
	for _, rule := range rules {
		if err := rule.Validate(u); err != nil {
			return err
		}
	}
	return nil
}

// AttachmentRules returns the rule set applied to email attachments.
func AttachmentRules(maxBytes int64) []ValidationRule {
	return []ValidationRule{NotEmpty(), MaxSize(maxBytes), AllowedExtensions(AttachmentExtensions...)}
}

// MaxSize returns a rule that rejects files larger than maxBytes.
func MaxSize(maxBytes int64) ValidationRule {
	return RuleFunc(func(u Upload) error {
		if u.Size <= maxBytes {
			return nil
		}
		return &FileValidationError{
			Field:   "file",
			Code:    ErrCodeFileTooLarge,
			Message: fmt.Sprintf("file size %d exceeds limit of %d bytes", u.Size, maxBytes),
			Details: map[string]any{"limit": maxBytes, "got": u.Size},
			err:     ErrFileTooLarge,
		}
	})
}

// NotEmpty returns a rule that rejects empty files.
func NotEmpty() ValidationRule {
	return RuleFunc(func(u Upload) error {
		if u.Size > 0 {
			return nil
		}
		return &FileValidationError{
			Field:   "file",
			Code:    ErrCodeEmptyFile,
			Message: "file is empty",
			Details: map[string]any{},
			err:     ErrEmptyFile,
		}
	})
}

// AllowedExtensions returns a rule that accepts only the given extensions.
// Matching is case-insensitive and the leading dot is optional.
func AllowedExtensions(exts ...string) ValidationRule {
	allowed := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allowed = append(allowed, e)
	}
	return RuleFunc(func(u Upload) error {
		ext := Ext(u.Filename)
		if ext != "" && slices.Contains(allowed, ext) {
			return nil
		}
		return &FileValidationError{
			Field:   "file",
			Code:    ErrCodeInvalidType,
			Message: fmt.Sprintf("file type %q is not allowed", ext),
			Details: map[string]any{"extension": ext, "allowed": allowed},
			err:     ErrInvalidType,
		}
	})
}
