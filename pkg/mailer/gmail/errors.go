package gmail

import "github.com/priyanshudevsingh/quickmailer/pkg/mailer"

// ErrTokenRejected is returned, wrapped with mailer.ErrProviderCall, when
// Gmail answers 401. It usually means the user revoked access.
var ErrTokenRejected = mailer.ErrTokenRejected
