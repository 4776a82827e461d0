package oauth

import (
	"net/http"

	"golang.org/x/oauth2"
)

// Option configures the Google provider.
type Option func(*options)

type options struct {
	httpClient  *http.Client
	endpoint    *oauth2.Endpoint
	userInfoURL string
}

// WithHTTPClient routes token and userinfo calls through client.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithEndpoint replaces Google's auth and token URLs, for emulators and
// tests. Zero-value URLs keep Google's.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(o *options) {
		o.endpoint = &ep
	}
}

// WithUserInfoURL replaces the userinfo endpoint.
func WithUserInfoURL(url string) Option {
	return func(o *options) {
		o.userInfoURL = url
	}
}

func (o options) resolvedEndpoint(def oauth2.Endpoint) oauth2.Endpoint {
	if o.endpoint == nil {
		return def
	}
	ep := *o.endpoint
	if ep.AuthURL == "" {
		ep.AuthURL = def.AuthURL
	}
	if ep.TokenURL == "" {
		ep.TokenURL = def.TokenURL
	}
	if ep.AuthStyle == oauth2.AuthStyleAutoDetect {
		ep.AuthStyle = def.AuthStyle
	}
	return ep
}
