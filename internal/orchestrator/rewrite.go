package orchestrator

// The model occasionally invents low-level Trello tools or phrases a
// comment as a card update. Both get normalized into trello_dispatch calls
// before scoring and execution so only one code path talks to the board.

// dispatchActions maps invented low-level tool names to dispatcher actions.
var dispatchActions = map[string]string{
	"trello_create_card":  "create",
	"trello_update_card":  "update",
	"trello_move_card":    "move",
	"trello_add_comment":  "comment",
	"trello_comment_card": "comment",
	"trello_archive_card": "archive",
	"trello_delete_card":  "delete",
}

// dispatchFieldAliases renames low-level argument fields to the
// dispatcher's vocabulary. An alias never overwrites an explicit field.
var dispatchFieldAliases = map[string]string{
	"name":      "card_name",
	"card":      "card_name",
	"board":     "board_name",
	"list":      "to_list_name",
	"list_name": "to_list_name",
	"text":      "comment_text",
	"comment":   "comment_text",
	"note":      "comment_text",
}

// rewriteCall normalizes an LLM-proposed tool call. Pure function: no I/O,
// the input map is never mutated.
func rewriteCall(name string, args map[string]any) (string, map[string]any) {
	action, lowLevel := dispatchActions[name]
	if !lowLevel {
		if name == "trello_dispatch" {
			return name, rerouteCommentUpdate(copyArgs(args))
		}
		return name, args
	}

	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		if alias, ok := dispatchFieldAliases[k]; ok {
			if _, explicit := args[alias]; !explicit {
				out[alias] = v
				continue
			}
		}
		out[k] = v
	}
	out["action"] = action
	return "trello_dispatch", rerouteCommentUpdate(out)
}

// rerouteCommentUpdate turns comment-phrased updates into comments.
func rerouteCommentUpdate(args map[string]any) map[string]any {
	action, _ := args["action"].(string)
	if action != "update" {
		return args
	}
	if text, _ := args["comment_text"].(string); text != "" {
		args["action"] = "comment"
	}
	return args
}

func copyArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
