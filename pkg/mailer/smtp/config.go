package smtp

import "time"

// Config holds SMTP relay settings. Intended for local development against
// a mail catcher; production traffic goes through the Gmail API.
type Config struct {
	Host        string        `env:"SMTP_HOST" envDefault:"127.0.0.1"`
	Username    string        `env:"SMTP_USERNAME"`
	Password    string        `env:"SMTP_PASSWORD"`
	From        string        `env:"SMTP_FROM" envDefault:"quickmailer@localhost"`
	Port        int           `env:"SMTP_PORT" envDefault:"2025"`
	DialTimeout time.Duration `env:"SMTP_DIAL_TIMEOUT" envDefault:"10s"`
}
