package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/majordomo-labs/majordomo/internal/authority"
	"github.com/majordomo-labs/majordomo/internal/llm"
	"github.com/majordomo-labs/majordomo/internal/services/trello"
	"github.com/majordomo-labs/majordomo/pkg/models"
)

// How sure a destructive action is about its target: near-certain when the
// caller pinned an explicit id, lower when it came from a name lookup.
const (
	idConfidence   = 0.95
	nameConfidence = 0.80
)

// DispatchTool is the unified entry point for every Trello card mutation.
// The LLM (or a rewritten low-level call) names an action; unresolved names
// come back as dispatch_required envelopes that the orchestrator persists
// and fills from the next user turn.
type DispatchTool struct {
	client *trello.Client
	policy *authority.Policy
}

// NewDispatchTool creates the dispatcher over a Trello client.
func NewDispatchTool(client *trello.Client) *DispatchTool {
	return &DispatchTool{client: client, policy: authority.DefaultPolicy()}
}

func cardConfidence(args map[string]any) float64 {
	if StringArg(args, "card_id") != "" {
		return idConfidence
	}
	return nameConfidence
}

func (t *DispatchTool) Name() string { return "trello_dispatch" }

func (t *DispatchTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        "trello_dispatch",
		Description: "Create, update, move, comment on, archive or delete a Trello card.",
		Parameters: map[string]any{
			"action":        map[string]any{"type": "string", "enum": []string{"create", "update", "move", "comment", "delete", "archive"}},
			"card_name":     map[string]any{"type": "string", "description": "Name of the card to act on."},
			"card_id":       map[string]any{"type": "string", "description": "Card id when already known."},
			"board_name":    map[string]any{"type": "string", "description": "Board the card lives on."},
			"to_board_name": map[string]any{"type": "string", "description": "Destination board for cross-board moves."},
			"to_list_name":  map[string]any{"type": "string", "description": "Destination list for moves and status changes."},
			"title":         map[string]any{"type": "string", "description": "Title for a new card."},
			"description":   map[string]any{"type": "string", "description": "Card description."},
			"comment_text":  map[string]any{"type": "string", "description": "Comment body."},
			"status":        map[string]any{"type": "string", "description": "Target status; treated as a list move."},
			"due":           map[string]any{"type": "string", "description": "Due date, ISO-8601."},
			"confirm":       map[string]any{"type": "boolean", "description": "Set after the user confirmed a destructive action."},
		},
		Required: []string{"action"},
	}
}

func (t *DispatchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	action := normalizeAction(args)
	switch action {
	case "create":
		return t.create(ctx, args)
	case "update":
		return t.update(ctx, args)
	case "move":
		return t.move(ctx, args)
	case "comment":
		return t.comment(ctx, args)
	case "archive":
		return t.archive(ctx, args)
	case "delete":
		return t.del(ctx, args)
	default:
		return envelope(models.StatusError, fmt.Sprintf("unknown action %q", action)), nil
	}
}

// normalizeAction applies the in-dispatcher reroutes: an update carrying
// comment text becomes a comment, an update carrying a status becomes a
// move (the status names the destination list).
func normalizeAction(args map[string]any) string {
	action := strings.ToLower(StringArg(args, "action"))
	if action != "update" {
		return action
	}
	if StringArg(args, "comment_text") != "" {
		return "comment"
	}
	if status := StringArg(args, "status"); status != "" {
		if StringArg(args, "to_list_name") == "" {
			args["to_list_name"] = status
		}
		return "move"
	}
	return action
}

// resolveCard finds the card and its board. The second return is a pending
// envelope (non-empty) when a name is unresolved and the user must supply it.
func (t *DispatchTool) resolveCard(ctx context.Context, args map[string]any) (*trello.Card, string, error) {
	if id := StringArg(args, "card_id"); id != "" {
		// The caller resolved the card already; fetch nothing extra and act
		// on the id directly.
		return &trello.Card{ID: id, Name: StringArg(args, "card_name")}, "", nil
	}

	cardName := StringArg(args, "card_name")
	if cardName == "" {
		return nil, dispatchRequired("card_name", "Which task/card should I use?", args), nil
	}

	if boardName := StringArg(args, "board_name"); boardName != "" {
		board, err := t.client.BoardByName(ctx, boardName)
		if err != nil {
			return nil, "", err
		}
		if board == nil {
			return nil, dispatchRequired("board_name", fmt.Sprintf("I couldn't find a board named %q. Which Trello board is this on?", boardName), args), nil
		}
		card, err := t.client.CardByName(ctx, board.ID, cardName)
		if err != nil {
			return nil, "", err
		}
		if card == nil {
			return nil, envelope(models.StatusError, fmt.Sprintf("No card named %q on board %q.", cardName, boardName)), nil
		}
		return card, "", nil
	}

	// No board named: search across boards and accept only an unambiguous hit.
	matches, err := t.client.SearchCards(ctx, cardName)
	if err != nil {
		return nil, "", err
	}
	var exact []trello.Card
	for _, c := range matches {
		if strings.EqualFold(c.Name, cardName) && !c.Closed {
			exact = append(exact, c)
		}
	}
	switch len(exact) {
	case 1:
		return &exact[0], "", nil
	case 0:
		return nil, envelope(models.StatusError, fmt.Sprintf("No card named %q on any board.", cardName)), nil
	default:
		return nil, dispatchRequired("board_name", "Which Trello board is this on?", args), nil
	}
}

func (t *DispatchTool) create(ctx context.Context, args map[string]any) (string, error) {
	title := StringArg(args, "title")
	if title == "" {
		return dispatchRequired("title", "What should the title be?", args), nil
	}
	boardName := StringArg(args, "board_name")
	if boardName == "" {
		return dispatchRequired("board_name", "Which Trello board is this on?", args), nil
	}
	board, err := t.client.BoardByName(ctx, boardName)
	if err != nil {
		return "", err
	}
	if board == nil {
		return dispatchRequired("board_name", fmt.Sprintf("I couldn't find a board named %q. Which Trello board is this on?", boardName), args), nil
	}

	var listID string
	if listName := StringArg(args, "to_list_name"); listName != "" {
		list, err := t.client.ListByName(ctx, board.ID, listName)
		if err != nil {
			return "", err
		}
		if list == nil {
			return dispatchRequired("to_list_name", fmt.Sprintf("There's no list named %q on %q. Which list should the card go on?", listName, board.Name), args), nil
		}
		listID = list.ID
	} else {
		lists, err := t.client.Lists(ctx, board.ID)
		if err != nil {
			return "", err
		}
		if len(lists) == 0 {
			return envelope(models.StatusError, fmt.Sprintf("Board %q has no lists.", board.Name)), nil
		}
		listID = lists[0].ID
	}

	card, err := t.client.CreateCard(ctx, listID, title, StringArg(args, "description"))
	if err != nil {
		return "", err
	}
	return completed(fmt.Sprintf("Task '%s' created on '%s'.", card.Name, board.Name), map[string]any{"card_id": card.ID, "url": card.ShortURL}), nil
}

func (t *DispatchTool) update(ctx context.Context, args map[string]any) (string, error) {
	card, pendingEnv, err := t.resolveCard(ctx, args)
	if err != nil || pendingEnv != "" {
		return pendingEnv, err
	}

	fields := map[string]string{}
	if v := StringArg(args, "new_name"); v != "" {
		fields["name"] = v
	}
	if v := StringArg(args, "description"); v != "" {
		fields["desc"] = v
	}
	if v := StringArg(args, "due"); v != "" {
		fields["due"] = v
	}
	if len(fields) == 0 {
		return envelope(models.StatusError, "Nothing to update: no new name, description or due date given."), nil
	}

	updated, err := t.client.UpdateCard(ctx, card.ID, fields)
	if err != nil {
		return "", err
	}
	return completed(fmt.Sprintf("Task '%s' updated.", updated.Name), nil), nil
}

func (t *DispatchTool) move(ctx context.Context, args map[string]any) (string, error) {
	card, pendingEnv, err := t.resolveCard(ctx, args)
	if err != nil || pendingEnv != "" {
		return pendingEnv, err
	}

	listName := StringArg(args, "to_list_name")
	if listName == "" {
		return dispatchRequired("to_list_name", "Which Trello list should I move it to?", args), nil
	}

	// Cross-board move: a named destination board that resolves to a
	// different board than the card's current one.
	destBoardID := card.BoardID
	crossBoard := false
	if toBoard := StringArg(args, "to_board_name"); toBoard != "" {
		board, err := t.client.BoardByName(ctx, toBoard)
		if err != nil {
			return "", err
		}
		if board == nil {
			return dispatchRequired("to_board_name", fmt.Sprintf("I couldn't find a board named %q. Which board should the card move to?", toBoard), args), nil
		}
		if board.ID != card.BoardID {
			destBoardID = board.ID
			crossBoard = true
		}
	}
	if destBoardID == "" {
		// Card arrived by bare id; we need its board to resolve the list.
		full, err := t.client.SearchCards(ctx, card.Name)
		if err != nil || len(full) == 0 {
			return dispatchRequired("board_name", "Which Trello board is this on?", args), err
		}
		destBoardID = full[0].BoardID
	}

	list, err := t.client.ListByName(ctx, destBoardID, listName)
	if err != nil {
		return "", err
	}
	if list == nil {
		return dispatchRequired("to_list_name", "Which Trello list should I move it to?", args), nil
	}

	boardArg := ""
	if crossBoard {
		boardArg = destBoardID
	}
	moved, err := t.client.MoveCard(ctx, card.ID, list.ID, boardArg)
	if err != nil {
		return "", err
	}
	return completed(fmt.Sprintf("Task '%s' moved to '%s'.", moved.Name, list.Name), nil), nil
}

func (t *DispatchTool) comment(ctx context.Context, args map[string]any) (string, error) {
	card, pendingEnv, err := t.resolveCard(ctx, args)
	if err != nil || pendingEnv != "" {
		return pendingEnv, err
	}

	text := StringArg(args, "comment_text")
	if text == "" {
		return models.MarshalEnvelope(&models.Envelope{
			Status:   models.StatusCommentRequired,
			Awaiting: "comment_text",
			Question: fmt.Sprintf("What should the comment on '%s' say?", card.Name),
			Data:     map[string]any{"card_id": card.ID, "card_name": card.Name},
		}), nil
	}
	if err := t.client.AddComment(ctx, card.ID, text); err != nil {
		return "", err
	}
	return completed(fmt.Sprintf("Comment added to '%s'.", card.Name), nil), nil
}

func (t *DispatchTool) archive(ctx context.Context, args map[string]any) (string, error) {
	card, pendingEnv, err := t.resolveCard(ctx, args)
	if err != nil || pendingEnv != "" {
		return pendingEnv, err
	}
	if t.policy.RequiresConfirmation("trello", "archive", authority.RiskMedium, cardConfidence(args)) && !BoolArg(args, "confirm") {
		return models.MarshalEnvelope(&models.Envelope{
			Status:  models.StatusConfirmationRequired,
			Message: fmt.Sprintf("Archive card '%s'? Say YES to archive, or CANCEL.", card.Name),
			Data:    map[string]any{"action": "archive", "card_id": card.ID, "card_name": card.Name},
		}), nil
	}
	archived, err := t.client.ArchiveCard(ctx, card.ID)
	if err != nil {
		return "", err
	}
	return completed(fmt.Sprintf("Task '%s' archived.", archived.Name), nil), nil
}

func (t *DispatchTool) del(ctx context.Context, args map[string]any) (string, error) {
	card, pendingEnv, err := t.resolveCard(ctx, args)
	if err != nil || pendingEnv != "" {
		return pendingEnv, err
	}

	if t.policy.RequiresConfirmation("trello", "delete", authority.RiskHigh, cardConfidence(args)) && !BoolArg(args, "confirm") {
		return models.MarshalEnvelope(&models.Envelope{
			Status:  models.StatusConfirmationRequired,
			Message: fmt.Sprintf("Permanently delete card '%s'? This can't be undone. Say YES to delete, or CANCEL.", card.Name),
			Data:    map[string]any{"action": "delete", "card_id": card.ID, "card_name": card.Name},
		}), nil
	}

	if err := t.client.DeleteCard(ctx, card.ID); err != nil {
		return "", err
	}
	return completed(fmt.Sprintf("Task '%s' deleted.", card.Name), nil), nil
}

// dispatchRequired builds the pending envelope carrying the full argument
// set so the next turn can splice in the answer and replay.
func dispatchRequired(awaiting, question string, args map[string]any) string {
	data := make(map[string]any, len(args))
	for k, v := range args {
		data[k] = v
	}
	return models.MarshalEnvelope(&models.Envelope{
		Status:   models.StatusDispatchRequired,
		Awaiting: awaiting,
		Question: question,
		Data:     data,
	})
}

func envelope(status, message string) string {
	return models.MarshalEnvelope(&models.Envelope{Status: status, Message: message})
}

func completed(message string, data map[string]any) string {
	return models.MarshalEnvelope(&models.Envelope{Status: models.StatusCompleted, Message: message, Data: data})
}
