// Package storage keeps attachment bytes on local disk or in an
// S3-compatible bucket behind one Storage interface.
//
//	store, err := storage.Open(cfg) // STORAGE_DRIVER=local|s3
//	info, err := storage.PutFile(ctx, store, fh,
//		storage.WithPrefix(userID),
//		storage.WithValidation(storage.AttachmentRules(cfg.MaxFileSize)...),
//	)
//	// info.Key: "{userID}/{uuid}.pdf"
//
// Validation failures are *FileValidationError values that also match
// ErrEmptyFile, ErrFileTooLarge or ErrInvalidType with errors.Is.
// Content types come from the file extension for the attachment formats
// and from magic-byte sniffing otherwise.
package storage
