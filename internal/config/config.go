// Package config loads process configuration from the environment, after
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/priyanshudevsingh/quickmailer/internal/auth"
	"github.com/priyanshudevsingh/quickmailer/pkg/db"
	"github.com/priyanshudevsingh/quickmailer/pkg/logger"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer/gmail"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer/resend"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer/smtp"
	"github.com/priyanshudevsingh/quickmailer/pkg/oauth"
	"github.com/priyanshudevsingh/quickmailer/pkg/redis"
	"github.com/priyanshudevsingh/quickmailer/pkg/secret"
	"github.com/priyanshudevsingh/quickmailer/pkg/storage"
)

// Mail providers.
const (
	ProviderGmail = "gmail"
	ProviderSMTP  = "smtp"
)

var ErrInvalid = errors.New("config: invalid configuration")

// Config is the full server and worker configuration.
type Config struct {
	Port        int    `env:"PORT" envDefault:"3001"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	// CookieSecret signs the login state cookie. Empty reuses JWT_SECRET.
	CookieSecret string `env:"COOKIE_SECRET"`
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"false"`

	MailProvider string        `env:"MAIL_PROVIDER" envDefault:"gmail"`
	SendDelay    time.Duration `env:"EMAIL_SEND_DELAY" envDefault:"100ms"`
	DraftDelay   time.Duration `env:"EMAIL_DRAFT_DELAY" envDefault:"50ms"`

	JobWorkers     int           `env:"JOB_MAX_WORKERS" envDefault:"10"`
	JobTimeout     time.Duration `env:"JOB_TIMEOUT" envDefault:"2h"`
	RefreshLockTTL time.Duration `env:"TOKEN_REFRESH_LOCK_TTL" envDefault:"15s"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	Log     logger.Config
	DB      db.Config
	Redis   redis.Config
	Storage storage.Config
	Secret  secret.Config
	Google  oauth.GoogleConfig
	JWT     auth.Config
	Gmail   gmail.Config
	SMTP    smtp.Config
	Resend  resend.Config
	Mailer  mailer.Config
}

// Migrate is the subset needed to apply schema migrations.
type Migrate struct {
	Log logger.Config
	DB  db.Config
}

// Load reads the given .env files (".env" when none are given), ignoring
// missing ones, then parses T from the environment. Variables already set
// in the environment win over file values.
func Load[T any](files ...string) (*T, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg, err := env.ParseAs[T]()
	if err != nil {
		return nil, errors.Join(ErrInvalid, err)
	}
	if v, ok := any(&cfg).(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return nil, errors.Join(ErrInvalid, err)
		}
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.MailProvider {
	case ProviderGmail, ProviderSMTP:
	default:
		return fmt.Errorf("MAIL_PROVIDER must be %q or %q, got %q", ProviderGmail, ProviderSMTP, c.MailProvider)
	}
	if c.CookieSecret == "" {
		c.CookieSecret = c.JWT.Secret
	}
	if len(c.CookieSecret) < 32 {
		return errors.New("COOKIE_SECRET (or JWT_SECRET) must be at least 32 characters")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.Resend.APIKey != "" && c.Resend.SenderEmail == "" {
		return errors.New("RESEND_FROM_EMAIL is required with RESEND_API_KEY")
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }
