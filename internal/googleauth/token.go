// Package googleauth exchanges one long-lived refresh token for short-lived
// access tokens shared by the Gmail and Calendar clients.
package googleauth

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// expiryMargin forces a refresh this long before the advertised expiry.
const expiryMargin = 60 * time.Second

var scopes = []string{
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/calendar",
}

// Config holds the installed-app OAuth credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Timeout      time.Duration
}

// TokenSource caches one access token across clients. Refreshes are
// serialized so concurrent turns share a single upstream exchange.
type TokenSource struct {
	mu     sync.Mutex
	source oauth2.TokenSource
	token  *oauth2.Token
}

// NewTokenSource builds the cached source from a refresh token.
func NewTokenSource(cfg Config) *TokenSource {
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}
	seed := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	return &TokenSource{source: oc.TokenSource(context.Background(), seed)}
}

// Token returns a valid access token, refreshing under the lock when the
// cached one is inside the expiry margin.
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != nil && ts.token.Expiry.After(time.Now().Add(expiryMargin)) {
		return ts.token, nil
	}
	tok, err := ts.source.Token()
	if err != nil {
		return nil, err
	}
	ts.token = tok
	return tok, nil
}

// Invalidate drops the cached token so the next call refreshes. Used for
// the forced-refresh-on-401 retry.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = nil
}

// Client returns an http.Client that authenticates with this source and
// applies the per-call timeout. A request rejected with 401/403 forces one
// token refresh and is replayed once.
func (ts *TokenSource) Client(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &retryTransport{
			source: ts,
			next:   &oauth2.Transport{Source: ts},
		},
		Timeout: timeout,
	}
}

// retryTransport invalidates the cached token and replays the request once
// when the upstream answers unauthorized. Requests whose body cannot be
// rewound are returned as-is.
type retryTransport struct {
	source *TokenSource
	next   http.RoundTripper
}

func (rt *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := rt.next.RoundTrip(req)
	if err != nil || (resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden) {
		return resp, err
	}
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	rt.source.Invalidate()
	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, berr := req.GetBody()
		if berr != nil {
			return resp, nil
		}
		retry.Body = body
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return rt.next.RoundTrip(retry)
}
