package apiclient

import (
	"net/http"
)

// TokenSource supplies the bearer token for outgoing requests and forgets it
// when the backend rejects it. [auth.Store] satisfies it.
type TokenSource interface {
	Token() string
	Clear() error
}

// Transport is an [http.RoundTripper] that attaches "Authorization: Bearer"
// to every request while a token is available.
//
// On a 401 response the token is cleared and OnUnauthorized, if set, is
// called. The response itself is passed through unchanged.
type Transport struct {
	// Base performs the actual request. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	// Tokens provides the current token. May be nil.
	Tokens TokenSource

	// OnUnauthorized runs after the token has been cleared.
	OnUnauthorized func()
}

// RoundTrip implements [http.RoundTripper].
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if t.Tokens != nil && req.Header.Get("Authorization") == "" {
		if token := t.Tokens.Token(); token != "" {
			// RoundTrippers must not mutate the caller's request
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if t.Tokens != nil {
			_ = t.Tokens.Clear()
		}
		if t.OnUnauthorized != nil {
			t.OnUnauthorized()
		}
	}
	return resp, nil
}
