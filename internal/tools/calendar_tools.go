package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/majordomo-labs/majordomo/internal/authority"
	"github.com/majordomo-labs/majordomo/internal/llm"
	"github.com/majordomo-labs/majordomo/internal/services/gcal"
	"github.com/majordomo-labs/majordomo/pkg/models"
)

// searchWindow is how far around the requested day event lookups scan when
// no explicit date is given.
const searchWindow = 14 * 24 * time.Hour

// CreateEventTool creates a calendar event, optionally with a Meet link.
type CreateEventTool struct {
	client *gcal.Client
	loc    *time.Location
}

func NewCreateEventTool(client *gcal.Client, loc *time.Location) *CreateEventTool {
	return &CreateEventTool{client: client, loc: loc}
}

func (t *CreateEventTool) Name() string { return "calendar_create_event" }

func (t *CreateEventTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        "calendar_create_event",
		Description: "Create a Google Calendar event. Attendees are notified.",
		Parameters: map[string]any{
			"title":       map[string]any{"type": "string", "description": "Event title."},
			"start_time":  map[string]any{"type": "string", "description": "Start, RFC3339 or YYYY-MM-DD for all-day."},
			"end_time":    map[string]any{"type": "string", "description": "End; defaults to one hour after start."},
			"description": map[string]any{"type": "string"},
			"attendees":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"with_meet":   map[string]any{"type": "boolean", "description": "Attach a Google Meet link."},
		},
		Required: []string{"title", "start_time"},
	}
}

func (t *CreateEventTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	summary := StringArg(args, "title")
	startRaw := StringArg(args, "start_time")

	body := map[string]any{"summary": summary}
	if d := StringArg(args, "description"); d != "" {
		body["description"] = d
	}

	if len(startRaw) == len("2006-01-02") {
		endRaw := StringArg(args, "end_time")
		if endRaw == "" {
			endRaw = startRaw
		}
		body["start"] = map[string]any{"date": startRaw}
		body["end"] = map[string]any{"date": endRaw}
	} else {
		start, err := time.ParseInLocation(time.RFC3339, startRaw, t.loc)
		if err != nil {
			return envelope(models.StatusError, fmt.Sprintf("I couldn't parse the start time %q.", startRaw)), nil
		}
		end := start.Add(time.Hour)
		if endRaw := StringArg(args, "end_time"); endRaw != "" {
			end, err = time.ParseInLocation(time.RFC3339, endRaw, t.loc)
			if err != nil {
				return envelope(models.StatusError, fmt.Sprintf("I couldn't parse the end time %q.", endRaw)), nil
			}
		}
		body["start"] = map[string]any{"dateTime": start.Format(time.RFC3339), "timeZone": t.loc.String()}
		body["end"] = map[string]any{"dateTime": end.Format(time.RFC3339), "timeZone": t.loc.String()}
	}

	if raw, ok := args["attendees"].([]any); ok && len(raw) > 0 {
		var attendees []map[string]any
		for _, a := range raw {
			if email, ok := a.(string); ok && email != "" {
				attendees = append(attendees, map[string]any{"email": email})
			}
		}
		if len(attendees) > 0 {
			body["attendees"] = attendees
		}
	}

	withMeet := BoolArg(args, "with_meet")
	if withMeet {
		body["conferenceData"] = map[string]any{
			"createRequest": map[string]any{
				"requestId":             fmt.Sprintf("majordomo-%d", time.Now().UnixNano()),
				"conferenceSolutionKey": map[string]any{"type": "hangoutsMeet"},
			},
		}
	}

	event, err := t.client.CreateEvent(ctx, body, withMeet)
	if err != nil {
		return "", err
	}
	msg := fmt.Sprintf("Event '%s' created.", event.Summary)
	if event.HangoutLink != "" {
		msg += " Meet link: " + event.HangoutLink
	}
	return completed(msg, map[string]any{"event_id": event.ID}), nil
}

// ListEventsTool lists upcoming events, default the next seven days.
type ListEventsTool struct {
	client *gcal.Client
	loc    *time.Location
	now    func() time.Time
}

func NewListEventsTool(client *gcal.Client, loc *time.Location) *ListEventsTool {
	return &ListEventsTool{client: client, loc: loc, now: time.Now}
}

func (t *ListEventsTool) Name() string { return "calendar_list_events" }

func (t *ListEventsTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        "calendar_list_events",
		Description: "List Google Calendar events in a time range, default the next 7 days.",
		Parameters: map[string]any{
			"time_min": map[string]any{"type": "string", "description": "Range start, RFC3339."},
			"time_max": map[string]any{"type": "string", "description": "Range end, RFC3339."},
			"query":    map[string]any{"type": "string", "description": "Free-text filter."},
		},
	}
}

func (t *ListEventsTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	now := t.now().In(t.loc)
	timeMin := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, t.loc)
	timeMax := timeMin.Add(7 * 24 * time.Hour)
	if v := StringArg(args, "time_min"); v != "" {
		parsed, err := time.ParseInLocation(time.RFC3339, v, t.loc)
		if err == nil {
			timeMin = parsed
		}
	}
	if v := StringArg(args, "time_max"); v != "" {
		parsed, err := time.ParseInLocation(time.RFC3339, v, t.loc)
		if err == nil {
			timeMax = parsed
		}
	}

	events, err := t.client.ListEvents(ctx, timeMin, timeMax, StringArg(args, "query"))
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return completed("No events in that range.", nil), nil
	}

	var b strings.Builder
	for _, e := range events {
		start, err := e.Start.Time(t.loc)
		when := "all day"
		if err == nil {
			when = start.In(t.loc).Format("Mon Jan 2 15:04")
		}
		fmt.Fprintf(&b, "- %s — %s\n", when, e.Summary)
	}
	return completed(strings.TrimRight(b.String(), "\n"), map[string]any{"count": len(events)}), nil
}

// CancelEventTool cancels or deletes a calendar event. Ambiguous matches
// come back as a numbered list the orchestrator persists; destructive
// variants (delete, whole series) ask for an explicit YES.
type CancelEventTool struct {
	client *gcal.Client
	loc    *time.Location
	policy *authority.Policy
	now    func() time.Time
}

func NewCancelEventTool(client *gcal.Client, loc *time.Location) *CancelEventTool {
	return &CancelEventTool{client: client, loc: loc, policy: authority.DefaultPolicy(), now: time.Now}
}

func (t *CancelEventTool) Name() string { return "calendar_cancel_event" }

func (t *CancelEventTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        "calendar_cancel_event",
		Description: "Cancel a Google Calendar event by title and approximate date. Attendees are notified.",
		Parameters: map[string]any{
			"event_title": map[string]any{"type": "string", "description": "Event title or a fragment of it."},
			"event_id":    map[string]any{"type": "string", "description": "Exact event id when already known."},
			"date":        map[string]any{"type": "string", "description": "Approximate date, YYYY-MM-DD."},
			"scope":       map[string]any{"type": "string", "enum": []string{"single", "series"}},
			"delete":      map[string]any{"type": "boolean", "description": "Remove the event instead of marking it cancelled."},
			"confirm":     map[string]any{"type": "boolean", "description": "Set after the user confirmed a destructive cancel."},
		},
		Required: []string{"event_title"},
	}
}

func (t *CancelEventTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	scope := StringArg(args, "scope")
	del := BoolArg(args, "delete")

	// Deletion is unrecoverable; a series cancel is recoverable but wide.
	risk := authority.RiskLow
	switch {
	case del:
		risk = authority.RiskHigh
	case scope == "series":
		risk = authority.RiskMedium
	}

	if id := StringArg(args, "event_id"); id != "" {
		if t.policy.RequiresConfirmation("calendar", "cancel", risk, idConfidence) && !BoolArg(args, "confirm") {
			return t.confirmEnvelope(ctx, id, args)
		}
		return t.execute(ctx, id, scope, del)
	}

	query := StringArg(args, "event_title")
	events, errEnv, err := t.findCandidates(ctx, args, query)
	if err != nil || errEnv != "" {
		return errEnv, err
	}

	candidates, byID := eventCandidates(events, t.loc)
	eq := eventQuery(query, StringArg(args, "date"), t.loc)

	winner, ok := authority.RankEvents(eq, candidates)
	if !ok {
		return disambiguate(candidates, byID, args), nil
	}

	if t.policy.RequiresConfirmation("calendar", "cancel", risk, nameConfidence) && !BoolArg(args, "confirm") {
		return t.confirmEnvelope(ctx, winner.ID, args)
	}
	return t.execute(ctx, winner.ID, scope, del)
}

func (t *CancelEventTool) findCandidates(ctx context.Context, args map[string]any, query string) ([]gcal.Event, string, error) {
	now := t.now().In(t.loc)
	timeMin := now.Add(-24 * time.Hour)
	timeMax := now.Add(searchWindow)
	if d := StringArg(args, "date"); d != "" {
		if day, err := time.ParseInLocation("2006-01-02", d, t.loc); err == nil {
			timeMin = day.Add(-24 * time.Hour)
			timeMax = day.Add(48 * time.Hour)
		}
	}
	events, err := t.client.ListEvents(ctx, timeMin, timeMax, query)
	if err != nil {
		return nil, "", err
	}
	var open []gcal.Event
	for _, e := range events {
		if e.Status != "cancelled" {
			open = append(open, e)
		}
	}
	if len(open) == 0 {
		return nil, envelope(models.StatusError, fmt.Sprintf("I couldn't find an upcoming event matching %q.", query)), nil
	}
	return open, "", nil
}

// eventCandidates converts events into rankable candidates, keyed for later
// lookup. Events without a parsable start are skipped.
func eventCandidates(events []gcal.Event, loc *time.Location) ([]authority.EventCandidate, map[string]gcal.Event) {
	candidates := make([]authority.EventCandidate, 0, len(events))
	byID := make(map[string]gcal.Event, len(events))
	for _, e := range events {
		start, err := e.Start.Time(loc)
		if err != nil {
			continue
		}
		end, _ := e.End.Time(loc)
		byID[e.ID] = e
		candidates = append(candidates, authority.EventCandidate{
			ID:    e.ID,
			Title: e.Summary,
			Start: start.In(loc),
			End:   end.In(loc),
		})
	}
	return candidates, byID
}

func eventQuery(title, date string, loc *time.Location) authority.EventQuery {
	eq := authority.EventQuery{Title: title}
	if date != "" {
		if day, err := time.ParseInLocation("2006-01-02", date, loc); err == nil {
			eq.Date = day
		}
	}
	return eq
}

// disambiguate returns a numbered candidate list; the orchestrator persists
// it and the user replies with a number.
func disambiguate(candidates []authority.EventCandidate, byID map[string]gcal.Event, args map[string]any) string {
	limit := len(candidates)
	if limit > 5 {
		limit = 5
	}
	var b strings.Builder
	b.WriteString("I found more than one match. Which one?\n")
	var options []map[string]any
	for i := 0; i < limit; i++ {
		c := candidates[i]
		e := byID[c.ID]
		fmt.Fprintf(&b, "%d. %s — %s\n", i+1, c.Title, c.Start.Format("Mon Jan 2 15:04"))
		options = append(options, map[string]any{
			"event_id":  c.ID,
			"summary":   c.Title,
			"recurring": e.IsRecurring(),
		})
	}
	data := make(map[string]any, len(args)+1)
	for k, v := range args {
		data[k] = v
	}
	data["candidates"] = options
	return models.MarshalEnvelope(&models.Envelope{
		Status:   models.StatusConfirmationRequired,
		Awaiting: "selection",
		Question: strings.TrimRight(b.String(), "\n"),
		Data:     data,
	})
}

func (t *CancelEventTool) confirmEnvelope(ctx context.Context, id string, args map[string]any) (string, error) {
	event, err := t.client.GetEvent(ctx, id)
	if err != nil {
		return "", err
	}
	verb := "Cancel"
	if BoolArg(args, "delete") {
		verb = "Permanently delete"
	}
	target := fmt.Sprintf("'%s'", event.Summary)
	if StringArg(args, "scope") == "series" {
		target += " and its whole series"
	}
	// Args first: a blank event_id from the model must not clobber the
	// resolved one.
	data := make(map[string]any, len(args)+1)
	for k, v := range args {
		data[k] = v
	}
	data["event_id"] = id
	return models.MarshalEnvelope(&models.Envelope{
		Status:  models.StatusConfirmationRequired,
		Message: fmt.Sprintf("%s %s? Attendees will be notified. Reply YES to proceed, or CANCEL.", verb, target),
		Data:    data,
	}), nil
}

func (t *CancelEventTool) execute(ctx context.Context, id, scope string, del bool) (string, error) {
	event, err := t.client.GetEvent(ctx, id)
	if err != nil {
		return "", err
	}

	// Cancelling a whole series targets the recurring parent, not the
	// expanded instance.
	targetID := id
	if scope == "series" && event.RecurringID != "" {
		targetID = event.RecurringID
	}

	if del {
		if err := t.client.DeleteEvent(ctx, targetID); err != nil {
			return "", err
		}
		return completed(fmt.Sprintf("Deleted '%s'.", event.Summary), map[string]any{"event_id": targetID}), nil
	}

	cancelled, err := t.client.CancelEvent(ctx, targetID)
	if err != nil {
		return "", err
	}
	summary := cancelled.Summary
	if summary == "" {
		summary = event.Summary
	}
	if scope == "series" {
		return completed(fmt.Sprintf("Cancelled the series '%s'. Attendees have been notified.", summary), map[string]any{"event_id": targetID}), nil
	}
	when := ""
	if start, terr := event.Start.Time(t.loc); terr == nil {
		when = " scheduled for " + start.In(t.loc).Format("Mon Jan 2 15:04")
	}
	return completed(fmt.Sprintf("Cancelled '%s'%s. Attendees have been notified.", summary, when), map[string]any{"event_id": targetID}), nil
}

// AddEventNoteTool appends a note to an event's description.
type AddEventNoteTool struct {
	client *gcal.Client
	loc    *time.Location
	now    func() time.Time
}

func NewAddEventNoteTool(client *gcal.Client, loc *time.Location) *AddEventNoteTool {
	return &AddEventNoteTool{client: client, loc: loc, now: time.Now}
}

func (t *AddEventNoteTool) Name() string { return "calendar_add_note" }

func (t *AddEventNoteTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        "calendar_add_note",
		Description: "Append a note to a Google Calendar event's description.",
		Parameters: map[string]any{
			"event_title": map[string]any{"type": "string", "description": "Event title or a fragment of it."},
			"event_id":    map[string]any{"type": "string"},
			"date":        map[string]any{"type": "string", "description": "Approximate date, YYYY-MM-DD."},
			"note":        map[string]any{"type": "string", "description": "Text to append."},
		},
		Required: []string{"event_title"},
	}
}

func (t *AddEventNoteTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	var event *gcal.Event
	if id := StringArg(args, "event_id"); id != "" {
		var err error
		event, err = t.client.GetEvent(ctx, id)
		if err != nil {
			return "", err
		}
	} else {
		query := StringArg(args, "event_title")
		cancel := CancelEventTool{client: t.client, loc: t.loc, now: t.now}
		events, errEnv, err := cancel.findCandidates(ctx, args, query)
		if err != nil || errEnv != "" {
			return errEnv, err
		}

		candidates, byID := eventCandidates(events, t.loc)
		winner, ok := authority.RankEvents(eventQuery(query, StringArg(args, "date"), t.loc), candidates)
		if !ok {
			return disambiguate(candidates, byID, args), nil
		}
		hit := byID[winner.ID]
		event = &hit
	}

	note := StringArg(args, "note")
	if note == "" {
		data := make(map[string]any, len(args)+1)
		for k, v := range args {
			data[k] = v
		}
		data["event_id"] = event.ID
		return models.MarshalEnvelope(&models.Envelope{
			Status:   models.StatusCommentRequired,
			Awaiting: "note",
			Question: fmt.Sprintf("What note should I add to '%s'?", event.Summary),
			Data:     data,
		}), nil
	}

	desc := event.Description
	if desc != "" {
		desc += "\n"
	}
	desc += note
	if _, err := t.client.PatchEvent(ctx, event.ID, map[string]any{"description": desc}); err != nil {
		return "", err
	}
	return completed(fmt.Sprintf("Note added to '%s'.", event.Summary), map[string]any{"event_id": event.ID}), nil
}
