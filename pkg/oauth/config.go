package oauth

// GoogleConfig holds Google OAuth configuration.
type GoogleConfig struct {
	ClientID     string   `env:"GOOGLE_CLIENT_ID,required"`
	ClientSecret string   `env:"GOOGLE_CLIENT_SECRET,required"`
	RedirectURL  string   `env:"GOOGLE_REDIRECT_URI" envDefault:"http://localhost:3001/api/auth/google/callback"`
	Scopes       []string `env:"GOOGLE_OAUTH_SCOPES" envSeparator:","`
}
