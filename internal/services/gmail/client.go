// Package gmail is a thin client over the Gmail REST API. Every method
// issues exactly one HTTP request; the bulk pipeline's one-call-per-turn
// budget is accounted in these terms.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/majordomo-labs/majordomo/internal/faults"
	"github.com/majordomo-labs/majordomo/internal/services/rest"
)

const defaultBaseURL = "https://gmail.googleapis.com/gmail/v1/users/me"

// Well-known label ids used by the bulk flows.
const (
	LabelTrash  = "TRASH"
	LabelInbox  = "INBOX"
	LabelSpam   = "SPAM"
	LabelUnread = "UNREAD"
)

// MessagePage is one page of a message-id listing.
type MessagePage struct {
	MessageIDs         []string
	NextPageToken      string
	ResultSizeEstimate int
}

// Label is a resolved Gmail label.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client talks to the Gmail API with an oauth2-authenticated http client.
type Client struct {
	http    rest.Doer
	baseURL string
}

// NewClient creates a client. The http client must carry OAuth credentials
// and the per-call timeout.
func NewClient(httpClient *http.Client) *Client {
	return &Client{http: httpClient, baseURL: defaultBaseURL}
}

// NewClientWithBaseURL is for tests against a local server.
func NewClientWithBaseURL(httpClient rest.Doer, baseURL string) *Client {
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// ListMessageIDsPage fetches one page of message ids matching query.
// Exactly one HTTP request.
func (c *Client) ListMessageIDsPage(ctx context.Context, query string, maxResults int, pageToken string) (*MessagePage, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", fmt.Sprint(maxResults))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
		NextPageToken      string `json:"nextPageToken"`
		ResultSizeEstimate int    `json:"resultSizeEstimate"`
	}
	u := c.baseURL + "/messages?" + params.Encode()
	if err := rest.DoJSON(ctx, c.http, http.MethodGet, u, nil, &out); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	page := &MessagePage{
		NextPageToken:      out.NextPageToken,
		ResultSizeEstimate: out.ResultSizeEstimate,
	}
	for _, m := range out.Messages {
		page.MessageIDs = append(page.MessageIDs, m.ID)
	}
	return page, nil
}

// BatchModifyLabels adds and removes labels on up to 1000 ids in one request.
func (c *Client) BatchModifyLabels(ctx context.Context, ids, add, remove []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"ids": ids}
	if len(add) > 0 {
		body["addLabelIds"] = add
	}
	if len(remove) > 0 {
		body["removeLabelIds"] = remove
	}
	u := c.baseURL + "/messages/batchModify"
	if err := rest.DoJSON(ctx, c.http, http.MethodPost, u, body, nil); err != nil {
		return fmt.Errorf("batch modify: %w", err)
	}
	return nil
}

// BatchDeleteMessages permanently deletes up to 1000 ids in one request.
func (c *Client) BatchDeleteMessages(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	u := c.baseURL + "/messages/batchDelete"
	if err := rest.DoJSON(ctx, c.http, http.MethodPost, u, map[string]any{"ids": ids}, nil); err != nil {
		return fmt.Errorf("batch delete: %w", err)
	}
	return nil
}

// GetMessageHeaders fetches the metadata headers for one message.
func (c *Client) GetMessageHeaders(ctx context.Context, id string) (map[string]string, error) {
	params := url.Values{}
	params.Set("format", "metadata")
	for _, h := range []string{"From", "Subject", "Date"} {
		params.Add("metadataHeaders", h)
	}

	var out struct {
		Payload struct {
			Headers []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"headers"`
		} `json:"payload"`
	}
	u := c.baseURL + "/messages/" + url.PathEscape(id) + "?" + params.Encode()
	if err := rest.DoJSON(ctx, c.http, http.MethodGet, u, nil, &out); err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}

	headers := make(map[string]string, len(out.Payload.Headers))
	for _, h := range out.Payload.Headers {
		headers[h.Name] = h.Value
	}
	return headers, nil
}

// ResolveLabelID resolves a label by case-insensitive name.
func (c *Client) ResolveLabelID(ctx context.Context, name string) (*Label, error) {
	var out struct {
		Labels []Label `json:"labels"`
	}
	if err := rest.DoJSON(ctx, c.http, http.MethodGet, c.baseURL+"/labels", nil, &out); err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	for _, l := range out.Labels {
		if strings.EqualFold(l.Name, name) {
			return &l, nil
		}
	}
	return nil, faults.New(faults.KindRejected, fmt.Sprintf("no label named %q", name))
}

// SendMessage sends an RFC-822 message and returns the new message id.
func (c *Client) SendMessage(ctx context.Context, to, subject, bodyText string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	u := c.baseURL + "/messages/send"
	if err := rest.DoJSON(ctx, c.http, http.MethodPost, u, rawPayload(to, subject, bodyText), &out); err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return out.ID, nil
}

// CreateDraft saves an RFC-822 message as a draft and returns the draft id.
func (c *Client) CreateDraft(ctx context.Context, to, subject, bodyText string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	u := c.baseURL + "/drafts"
	body := map[string]any{"message": rawPayload(to, subject, bodyText)}
	if err := rest.DoJSON(ctx, c.http, http.MethodPost, u, body, &out); err != nil {
		return "", fmt.Errorf("create draft: %w", err)
	}
	return out.ID, nil
}

func rawPayload(to, subject, bodyText string) map[string]any {
	raw := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s", to, subject, bodyText)
	return map[string]any{"raw": base64.URLEncoding.EncodeToString([]byte(raw))}
}
