// Package rest is the shared HTTP plumbing for the Gmail, Calendar and
// Trello clients: one JSON round trip per call, with upstream status codes
// mapped onto the fault taxonomy.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/majordomo-labs/majordomo/internal/faults"
)

// Doer is the subset of http.Client the service clients need.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoJSON performs one HTTP request, optionally encoding body as JSON and
// decoding the response into out (when non-nil). Exactly one request is
// issued per call.
func DoJSON(ctx context.Context, client Doer, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return faults.Wrap(faults.KindInternal, "encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return faults.Wrap(faults.KindInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return faults.Wrap(faults.KindTransient, "request failed", err)
	}
	defer resp.Body.Close()

	if err := CheckStatus(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return faults.Wrap(faults.KindInternal, "decode response", err)
	}
	return nil
}

// CheckStatus maps a non-2xx response onto a fault kind, consuming a
// bounded prefix of the body for the error message.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := fmt.Sprintf("%s %s: %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, snippet)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return faults.New(faults.KindAuth, msg)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return faults.New(faults.KindRejected, msg)
	default:
		return faults.New(faults.KindTransient, msg)
	}
}

// IsAuth reports whether err is a 401/403 permission failure.
func IsAuth(err error) bool { return faults.Is(err, faults.KindAuth) }
