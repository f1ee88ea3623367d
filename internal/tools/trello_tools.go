package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/majordomo-labs/majordomo/internal/llm"
	"github.com/majordomo-labs/majordomo/internal/services/trello"
	"github.com/majordomo-labs/majordomo/pkg/models"
)

// lookupCard resolves a card by name, scoped to a board when one is given,
// otherwise by cross-board search requiring an unambiguous exact match.
// The string return is a non-empty error envelope when resolution fails.
func lookupCard(ctx context.Context, client *trello.Client, cardName, boardName string) (*trello.Card, string, error) {
	if boardName != "" {
		board, err := client.BoardByName(ctx, boardName)
		if err != nil {
			return nil, "", err
		}
		if board == nil {
			return nil, envelope(models.StatusError, fmt.Sprintf("No board named %q.", boardName)), nil
		}
		card, err := client.CardByName(ctx, board.ID, cardName)
		if err != nil {
			return nil, "", err
		}
		if card == nil {
			return nil, envelope(models.StatusError, fmt.Sprintf("No card named %q on board %q.", cardName, boardName)), nil
		}
		return card, "", nil
	}

	matches, err := client.SearchCards(ctx, cardName)
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
		return nil, envelope(models.StatusError, fmt.Sprintf("Found %d cards named %q on different boards; tell me which board.", len(exact), cardName)), nil
	}
}

// CardStatusTool reports which list a card currently sits on.
type CardStatusTool struct {
	client *trello.Client
}

func NewCardStatusTool(client *trello.Client) *CardStatusTool {
	return &CardStatusTool{client: client}
}

func (t *CardStatusTool) Name() string { return "trello_get_card_status" }

func (t *CardStatusTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        "trello_get_card_status",
		Description: "Report which list a Trello card is currently on.",
		Parameters: map[string]any{
			"card_name":  map[string]any{"type": "string"},
			"card_id":    map[string]any{"type": "string"},
			"board_name": map[string]any{"type": "string"},
		},
		Required: []string{"card_name"},
	}
}

func (t *CardStatusTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	card, errEnv, err := lookupCard(ctx, t.client, StringArg(args, "card_name"), StringArg(args, "board_name"))
	if err != nil || errEnv != "" {
		return errEnv, err
	}

	list, err := listByID(ctx, t.client, card.BoardID, card.ListID)
	if err != nil {
		return "", err
	}
	listName := card.ListID
	if list != nil {
		listName = list.Name
	}
	return completed(fmt.Sprintf("'%s' is in '%s'.", card.Name, listName), map[string]any{
		"card_id": card.ID, "list_name": listName, "url": card.ShortURL,
	}), nil
}

func listByID(ctx context.Context, client *trello.Client, boardID, listID string) (*trello.List, error) {
	lists, err := client.Lists(ctx, boardID)
	if err != nil {
		return nil, err
	}
	for _, l := range lists {
		if l.ID == listID {
			return &l, nil
		}
	}
	return nil, nil
}

// ListCardsTool enumerates the cards on a board, grouped by list.
type ListCardsTool struct {
	client *trello.Client
}

func NewListCardsTool(client *trello.Client) *ListCardsTool {
	return &ListCardsTool{client: client}
}

func (t *ListCardsTool) Name() string { return "trello_list_cards" }

func (t *ListCardsTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        "trello_list_cards",
		Description: "List the open cards on a Trello board, grouped by list.",
		Parameters: map[string]any{
			"board_name": map[string]any{"type": "string"},
			"list_name":  map[string]any{"type": "string", "description": "Restrict to one list."},
		},
		Required: []string{"board_name"},
	}
}

func (t *ListCardsTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	boardName := StringArg(args, "board_name")
	board, err := t.client.BoardByName(ctx, boardName)
	if err != nil {
		return "", err
	}
	if board == nil {
		return envelope(models.StatusError, fmt.Sprintf("No board named %q.", boardName)), nil
	}

	lists, err := t.client.Lists(ctx, board.ID)
	if err != nil {
		return "", err
	}
	cards, err := t.client.CardsOnBoard(ctx, board.ID)
	if err != nil {
		return "", err
	}

	listName := map[string]string{}
	for _, l := range lists {
		listName[l.ID] = l.Name
	}
	onlyList := StringArg(args, "list_name")

	grouped := map[string][]string{}
	var order []string
	for _, l := range lists {
		if onlyList != "" && !strings.EqualFold(l.Name, onlyList) {
			continue
		}
		order = append(order, l.Name)
	}
	for _, c := range cards {
		name := listName[c.ListID]
		if onlyList != "" && !strings.EqualFold(name, onlyList) {
			continue
		}
		grouped[name] = append(grouped[name], c.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Board '%s':\n", board.Name)
	for _, name := range order {
		fmt.Fprintf(&b, "%s (%d):\n", name, len(grouped[name]))
		for _, cn := range grouped[name] {
			fmt.Fprintf(&b, "  - %s\n", cn)
		}
	}
	return completed(strings.TrimRight(b.String(), "\n"), map[string]any{"board_id": board.ID}), nil
}

// FindCardTool locates a card and returns its URL. The orchestrator
// short-circuits this tool's result straight to the user.
type FindCardTool struct {
	client *trello.Client
}

func NewFindCardTool(client *trello.Client) *FindCardTool {
	return &FindCardTool{client: client}
}

func (t *FindCardTool) Name() string { return "trello_find_card" }

func (t *FindCardTool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        "trello_find_card",
		Description: "Find a Trello card and return a link to it.",
		Parameters: map[string]any{
			"card_name":  map[string]any{"type": "string"},
			"board_name": map[string]any{"type": "string"},
		},
		Required: []string{"card_name"},
	}
}

func (t *FindCardTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	card, errEnv, err := lookupCard(ctx, t.client, StringArg(args, "card_name"), StringArg(args, "board_name"))
	if err != nil || errEnv != "" {
		return errEnv, err
	}
	msg := fmt.Sprintf("Found '%s': %s", card.Name, card.ShortURL)
	if card.ShortURL == "" {
		msg = fmt.Sprintf("Found '%s' but Trello returned no link for it.", card.Name)
	}
	return completed(msg, map[string]any{"card_id": card.ID, "url": card.ShortURL}), nil
}
