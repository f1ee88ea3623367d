// Package gcal is a thin client over the Google Calendar REST API. All
// mutating calls notify attendees with sendUpdates=all.
package gcal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/majordomo-labs/majordomo/internal/services/rest"
)

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// Event is the subset of the Calendar event resource the flows need.
type Event struct {
	ID          string     `json:"id"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	Start       EventTime  `json:"start"`
	End         EventTime  `json:"end"`
	Recurrence  []string   `json:"recurrence,omitempty"`
	RecurringID string     `json:"recurringEventId,omitempty"`
	HangoutLink string     `json:"hangoutLink,omitempty"`
}

// EventTime carries either a timed instant or an all-day date.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Time parses the event time in the given location. All-day dates resolve
// to midnight local time.
func (et EventTime) Time(loc *time.Location) (time.Time, error) {
	if et.DateTime != "" {
		return time.Parse(time.RFC3339, et.DateTime)
	}
	if et.Date != "" {
		return time.ParseInLocation("2006-01-02", et.Date, loc)
	}
	return time.Time{}, fmt.Errorf("event time is empty")
}

// IsRecurring reports whether the event is part of a series.
func (e *Event) IsRecurring() bool {
	return len(e.Recurrence) > 0 || e.RecurringID != ""
}

// Client talks to the Calendar API for the primary calendar.
type Client struct {
	http    rest.Doer
	baseURL string
}

// NewClient creates a client over an oauth2-authenticated http client.
func NewClient(httpClient *http.Client) *Client {
	return &Client{http: httpClient, baseURL: defaultBaseURL}
}

// NewClientWithBaseURL is for tests against a local server.
func NewClientWithBaseURL(httpClient rest.Doer, baseURL string) *Client {
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// ListEvents returns events in [timeMin, timeMax], optionally filtered by
// free-text query, expanded to single instances.
func (c *Client) ListEvents(ctx context.Context, timeMin, timeMax time.Time, query string) ([]Event, error) {
	params := url.Values{}
	params.Set("timeMin", timeMin.Format(time.RFC3339))
	params.Set("timeMax", timeMax.Format(time.RFC3339))
	params.Set("singleEvents", "true")
	params.Set("orderBy", "startTime")
	if query != "" {
		params.Set("q", query)
	}

	var out struct {
		Items []Event `json:"items"`
	}
	u := c.baseURL + "/calendars/primary/events?" + params.Encode()
	if err := rest.DoJSON(ctx, c.http, http.MethodGet, u, nil, &out); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out.Items, nil
}

// GetEvent fetches one event by id.
func (c *Client) GetEvent(ctx context.Context, id string) (*Event, error) {
	var out Event
	u := c.baseURL + "/calendars/primary/events/" + url.PathEscape(id)
	if err := rest.DoJSON(ctx, c.http, http.MethodGet, u, nil, &out); err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return &out, nil
}

// PatchEvent applies a partial update, notifying attendees.
func (c *Client) PatchEvent(ctx context.Context, id string, patch map[string]any) (*Event, error) {
	var out Event
	u := c.baseURL + "/calendars/primary/events/" + url.PathEscape(id) + "?sendUpdates=all"
	if err := rest.DoJSON(ctx, c.http, http.MethodPatch, u, patch, &out); err != nil {
		return nil, fmt.Errorf("patch event %s: %w", id, err)
	}
	return &out, nil
}

// CancelEvent marks the event cancelled, notifying attendees. Cancelling an
// already-cancelled event succeeds with the same id.
func (c *Client) CancelEvent(ctx context.Context, id string) (*Event, error) {
	existing, err := c.GetEvent(ctx, id)
	if err == nil && existing.Status == "cancelled" {
		return existing, nil
	}
	return c.PatchEvent(ctx, id, map[string]any{"status": "cancelled"})
}

// DeleteEvent removes the event entirely, notifying attendees.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	u := c.baseURL + "/calendars/primary/events/" + url.PathEscape(id) + "?sendUpdates=all"
	if err := rest.DoJSON(ctx, c.http, http.MethodDelete, u, nil, nil); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

// CreateEvent inserts an event. withMeet requests a video link through
// conference-data v1.
func (c *Client) CreateEvent(ctx context.Context, body map[string]any, withMeet bool) (*Event, error) {
	u := c.baseURL + "/calendars/primary/events?sendUpdates=all"
	if withMeet {
		u += "&conferenceDataVersion=1"
	}
	var out Event
	if err := rest.DoJSON(ctx, c.http, http.MethodPost, u, body, &out); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return &out, nil
}
