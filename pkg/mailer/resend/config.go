package resend

// Config holds Resend configuration for run notifications.
type Config struct {
	APIKey      string `env:"RESEND_API_KEY"`
	SenderEmail string `env:"RESEND_FROM_EMAIL"`
	SenderName  string `env:"RESEND_FROM_NAME" envDefault:"QuickMailer"`
}

// Enabled reports whether an API key and sender address are configured.
func (c Config) Enabled() bool {
	return c.APIKey != "" && c.SenderEmail != ""
}
