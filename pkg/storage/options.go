package storage

// Option configures Put operations.
type Option func(*putOptions)

type putOptions struct {
	key         string
	prefix      string
	filename    string
	contentType string
	rules       []ValidationRule
}

// WithKey sets an explicit storage key, replacing the generated one.
func WithKey(key string) Option {
	return func(o *putOptions) {
		o.key = key
	}
}

// WithPrefix sets a path prefix for the generated key.
// Example: WithPrefix(userID) results in "{userID}/{uuid}.{ext}".
func WithPrefix(prefix string) Option {
	return func(o *putOptions) {
		o.prefix = prefix
	}
}

// WithFilename records the client-side file name. Its extension is preferred
// over the detected MIME type when the key is generated.
func WithFilename(name string) Option {
	return func(o *putOptions) {
		o.filename = name
	}
}

// WithContentType overrides the detected content type.
func WithContentType(ct string) Option {
	return func(o *putOptions) {
		o.contentType = ct
	}
}

// WithValidation adds rules checked before any byte is written.
// A failing rule aborts the upload with a *FileValidationError.
func WithValidation(rules ...ValidationRule) Option {
	return func(o *putOptions) {
		o.rules = append(o.rules, rules...)
	}
}

func collectOptions(opts []Option) *putOptions {
	o := &putOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
