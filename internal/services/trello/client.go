// Package trello is a thin client over the Trello REST API, authenticated
// with a key/token pair on every request.
package trello

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/majordomo-labs/majordomo/internal/services/rest"
)

const defaultBaseURL = "https://api.trello.com/1"

// Board is a Trello board.
type Board struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// List is a column on a board.
type List struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	BoardID string `json:"idBoard"`
}

// Card is a Trello card.
type Card struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Desc     string `json:"desc,omitempty"`
	ListID   string `json:"idList"`
	BoardID  string `json:"idBoard"`
	Closed   bool   `json:"closed"`
	ShortURL string `json:"shortUrl,omitempty"`
	Due      string `json:"due,omitempty"`
}

// Client talks to the Trello API.
type Client struct {
	http    rest.Doer
	baseURL string
	key     string
	token   string
}

// NewClient creates a client with the given credentials and timeout.
func NewClient(key, token string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: defaultBaseURL,
		key:     key,
		token:   token,
	}
}

// NewClientWithBaseURL is for tests against a local server.
func NewClientWithBaseURL(httpClient rest.Doer, baseURL, key, token string) *Client {
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/"), key: key, token: token}
}

func (c *Client) url(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("key", c.key)
	params.Set("token", c.token)
	return c.baseURL + path + "?" + params.Encode()
}

// Boards returns the member's open boards.
func (c *Client) Boards(ctx context.Context) ([]Board, error) {
	var out []Board
	params := url.Values{}
	params.Set("filter", "open")
	if err := rest.DoJSON(ctx, c.http, http.MethodGet, c.url("/members/me/boards", params), nil, &out); err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	return out, nil
}

// BoardByName resolves a board by case-insensitive name, or nil.
func (c *Client) BoardByName(ctx context.Context, name string) (*Board, error) {
	boards, err := c.Boards(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range boards {
		if strings.EqualFold(b.Name, name) {
			return &b, nil
		}
	}
	return nil, nil
}

// Lists returns the open lists on a board.
func (c *Client) Lists(ctx context.Context, boardID string) ([]List, error) {
	var out []List
	if err := rest.DoJSON(ctx, c.http, http.MethodGet, c.url("/boards/"+url.PathEscape(boardID)+"/lists", nil), nil, &out); err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	return out, nil
}

// ListByName resolves a list on a board by case-insensitive name, or nil.
func (c *Client) ListByName(ctx context.Context, boardID, name string) (*List, error) {
	lists, err := c.Lists(ctx, boardID)
	if err != nil {
		return nil, err
	}
	for _, l := range lists {
		if strings.EqualFold(l.Name, name) {
			return &l, nil
		}
	}
	return nil, nil
}

// CardsOnBoard returns the open cards on a board.
func (c *Client) CardsOnBoard(ctx context.Context, boardID string) ([]Card, error) {
	var out []Card
	if err := rest.DoJSON(ctx, c.http, http.MethodGet, c.url("/boards/"+url.PathEscape(boardID)+"/cards", nil), nil, &out); err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return out, nil
}

// CardByName resolves a card on a board by case-insensitive name, or nil.
func (c *Client) CardByName(ctx context.Context, boardID, name string) (*Card, error) {
	cards, err := c.CardsOnBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	for _, card := range cards {
		if strings.EqualFold(card.Name, name) {
			return &card, nil
		}
	}
	return nil, nil
}

// SearchCards runs a free-text card search across boards.
func (c *Client) SearchCards(ctx context.Context, query string) ([]Card, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("modelTypes", "cards")

	var out struct {
		Cards []Card `json:"cards"`
	}
	if err := rest.DoJSON(ctx, c.http, http.MethodGet, c.url("/search", params), nil, &out); err != nil {
		return nil, fmt.Errorf("search cards: %w", err)
	}
	return out.Cards, nil
}

// CreateCard creates a card on a list.
func (c *Client) CreateCard(ctx context.Context, listID, name, desc string) (*Card, error) {
	params := url.Values{}
	params.Set("idList", listID)
	params.Set("name", name)
	if desc != "" {
		params.Set("desc", desc)
	}
	var out Card
	if err := rest.DoJSON(ctx, c.http, http.MethodPost, c.url("/cards", params), nil, &out); err != nil {
		return nil, fmt.Errorf("create card: %w", err)
	}
	return &out, nil
}

// UpdateCard applies field updates to a card. All modifications except
// comments go through this endpoint; archive is fields["closed"]="true".
func (c *Client) UpdateCard(ctx context.Context, cardID string, fields map[string]string) (*Card, error) {
	params := url.Values{}
	for k, v := range fields {
		params.Set(k, v)
	}
	var out Card
	if err := rest.DoJSON(ctx, c.http, http.MethodPut, c.url("/cards/"+url.PathEscape(cardID), params), nil, &out); err != nil {
		return nil, fmt.Errorf("update card: %w", err)
	}
	return &out, nil
}

// MoveCard moves a card to another list (optionally on another board).
func (c *Client) MoveCard(ctx context.Context, cardID, listID, boardID string) (*Card, error) {
	fields := map[string]string{"idList": listID}
	if boardID != "" {
		fields["idBoard"] = boardID
	}
	return c.UpdateCard(ctx, cardID, fields)
}

// AddComment posts a comment on a card. Comments have their own endpoint.
func (c *Client) AddComment(ctx context.Context, cardID, text string) error {
	params := url.Values{}
	params.Set("text", text)
	if err := rest.DoJSON(ctx, c.http, http.MethodPost, c.url("/cards/"+url.PathEscape(cardID)+"/actions/comments", params), nil, nil); err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}

// ArchiveCard closes a card.
func (c *Client) ArchiveCard(ctx context.Context, cardID string) (*Card, error) {
	return c.UpdateCard(ctx, cardID, map[string]string{"closed": "true"})
}

// DeleteCard permanently deletes a card.
func (c *Client) DeleteCard(ctx context.Context, cardID string) error {
	if err := rest.DoJSON(ctx, c.http, http.MethodDelete, c.url("/cards/"+url.PathEscape(cardID), nil), nil, nil); err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	return nil
}
