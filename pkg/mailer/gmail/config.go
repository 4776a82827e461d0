package gmail

import "time"

// Config holds Gmail API client configuration.
type Config struct {
	// Endpoint overrides the API base URL. Empty uses the public endpoint.
	Endpoint string        `env:"GMAIL_API_ENDPOINT"`
	Timeout  time.Duration `env:"GMAIL_API_TIMEOUT" envDefault:"30s"`
}
