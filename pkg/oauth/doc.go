// Package oauth implements the Google authorization code flow used to sign
// users in and to obtain the offline Gmail grant the delivery pipeline needs.
//
// AuthCodeURL always asks for offline access with forced consent so the
// callback receives a refresh token. Refresh trades a stored refresh token
// for a new access token and keeps the old refresh token when Google does
// not rotate it.
//
//	provider, err := oauth.NewGoogleProvider(cfg)
//	if err != nil {
//		return err
//	}
//	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
//
//	// callback
//	token, err := provider.Exchange(ctx, code, "")
//	info, err := provider.FetchUserInfo(ctx, token)
//
// Errors are sentinels prefixed with "oauth:" and joined with the
// underlying cause, so callers match with errors.Is.
package oauth
