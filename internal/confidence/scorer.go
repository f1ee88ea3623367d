// Package confidence deterministically scores a proposed tool call before it
// executes. Scoring is a weighted sum of four sub-scores (intent,
// completeness, uniqueness, feasibility) with family-specific presence
// rules. No network calls are made here.
package confidence

import (
	"math"
	"regexp"
	"strings"
)

// Assessment is the scorer output. Score is 0-100. When Awaiting is set,
// Question is the single clarification to ask the user.
type Assessment struct {
	Score    int      `json:"score"`
	Awaiting string   `json:"awaiting,omitempty"`
	Question string   `json:"question,omitempty"`
	Missing  []string `json:"missing,omitempty"`
}

// Bands used by the routing layer.
const (
	// ClarifyThreshold: below this the call never executes on the same turn.
	ClarifyThreshold = 70

	// OneShotThreshold: between ClarifyThreshold and this, ask exactly once
	// then proceed regardless.
	OneShotThreshold = 89
)

// Sub-score weights.
const (
	weightIntent       = 0.25
	weightCompleteness = 0.30
	weightUniqueness   = 0.25
	weightFeasibility  = 0.20
)

// completeness drops by this much per missing field, floored at 0.40.
const (
	missingPenalty     = 0.20
	completenessFloor  = 0.40
	missingScoreCeiling = 89
)

var hexID = regexp.MustCompile(`^[0-9a-f]{24}$`)

// clarifications maps an awaiting field to its fixed question.
var clarifications = map[string]string{
	"card_name":    "Which task/card should I use?",
	"board_name":   "Which Trello board is this on?",
	"to_list_name": "Which Trello list should I move it to?",
	"title":        "What should the title be?",
	"to":           "Who should I send it to?",
	"subject":      "What's the subject line?",
	"body":         "What should the message say?",
	"start_time":   "When should it start?",
	"event_title":  "Which event do you mean?",
	"note":         "What note should I add?",
}

// family describes the presence rules for one tool family.
type family struct {
	// required fields, in the order clarification should ask for them.
	required []string
	// idFields whose 24-hex values make the target near-certainly unique.
	idFields []string
	// nameFields that identify the target when no id is given.
	nameFields []string
}

var families = map[string]family{
	"trello_dispatch": {
		required:   []string{"card_name", "board_name"},
		idFields:   []string{"card_id", "board_id"},
		nameFields: []string{"card_name", "board_name"},
	},
	"trello_dispatch:create": {
		required:   []string{"title", "board_name"},
		idFields:   []string{"board_id"},
		nameFields: []string{"title", "board_name"},
	},
	"trello_dispatch:move": {
		required:   []string{"card_name", "to_list_name"},
		idFields:   []string{"card_id", "board_id"},
		nameFields: []string{"card_name", "board_name"},
	},
	"trello_dispatch:comment": {
		required:   []string{"card_name"},
		idFields:   []string{"card_id", "board_id"},
		nameFields: []string{"card_name", "board_name"},
	},
	"trello_dispatch:update": {
		required:   []string{"card_name"},
		idFields:   []string{"card_id", "board_id"},
		nameFields: []string{"card_name", "board_name"},
	},
	"trello_dispatch:archive": {
		required:   []string{"card_name"},
		idFields:   []string{"card_id", "board_id"},
		nameFields: []string{"card_name", "board_name"},
	},
	"trello_dispatch:delete": {
		required:   []string{"card_name"},
		idFields:   []string{"card_id", "board_id"},
		nameFields: []string{"card_name", "board_name"},
	},
	"trello_get_card_status": {
		required:   []string{"card_name", "board_name"},
		idFields:   []string{"card_id"},
		nameFields: []string{"card_name", "board_name"},
	},
	"trello_list_cards": {
		required:   []string{"board_name"},
		idFields:   []string{"board_id"},
		nameFields: []string{"board_name"},
	},
	"gmail_send_email": {
		required:   []string{"to", "subject", "body"},
		nameFields: []string{"to"},
	},
	"gmail_create_draft": {
		required:   []string{"to", "subject", "body"},
		nameFields: []string{"to"},
	},
	"calendar_create_event": {
		required:   []string{"title", "start_time"},
		nameFields: []string{"title"},
	},
	"calendar_update_event": {
		required:   []string{"event_title"},
		idFields:   []string{"event_id"},
		nameFields: []string{"event_title"},
	},
	"calendar_cancel_event": {
		required:   []string{"event_title"},
		idFields:   []string{"event_id"},
		nameFields: []string{"event_title"},
	},
}

// Schema optionally narrows the required-field set per call site.
type Schema struct {
	Required []string
}

// familyFor picks the presence rules for a call. The Trello dispatcher's
// requirements depend on the action: a create needs a title and a board, a
// move needs the card and the destination list, the rest only the card.
func familyFor(toolName string, args map[string]any) (family, bool) {
	if action, ok := stringArg(args, "action"); ok {
		if fam, ok := families[toolName+":"+strings.ToLower(strings.TrimSpace(action))]; ok {
			return fam, true
		}
	}
	fam, ok := families[toolName]
	return fam, ok
}

// Score assesses a candidate tool call.
func Score(toolName string, args map[string]any, schema *Schema) Assessment {
	fam, known := familyFor(toolName, args)

	required := fam.required
	if schema != nil && len(schema.Required) > 0 {
		required = schema.Required
	}

	var missing []string
	for _, field := range required {
		if !present(args, field) && !hasIDSubstitute(args, fam, field) {
			missing = append(missing, field)
		}
	}

	intent := 0.70
	if known {
		intent = 0.95
	}

	completeness := 1.0 - missingPenalty*float64(len(missing))
	if completeness < completenessFloor {
		completeness = completenessFloor
	}

	uniqueness := uniquenessScore(args, fam)
	feasibility := 0.90 - 0.15*math.Min(float64(len(missing)), 2)

	weighted := weightIntent*intent +
		weightCompleteness*completeness +
		weightUniqueness*uniqueness +
		weightFeasibility*feasibility
	score := int(math.Round(100 * weighted))

	// A call with unresolved fields can never clear the trusted band.
	if len(missing) > 0 && score > missingScoreCeiling {
		score = missingScoreCeiling
	}

	assessment := Assessment{Score: score, Missing: missing}
	if len(missing) > 0 {
		assessment.Awaiting = missing[0]
		assessment.Question = QuestionFor(missing[0])
	}
	return assessment
}

// QuestionFor returns the canned clarification for a field.
func QuestionFor(field string) string {
	if q, ok := clarifications[field]; ok {
		return q
	}
	return "Could you clarify the " + strings.ReplaceAll(field, "_", " ") + "?"
}

func uniquenessScore(args map[string]any, fam family) float64 {
	for _, field := range fam.idFields {
		if v, ok := stringArg(args, field); ok && hexID.MatchString(strings.ToLower(v)) {
			return 0.98
		}
	}
	named := 0
	for _, field := range fam.nameFields {
		if present(args, field) {
			named++
		}
	}
	switch {
	case len(fam.nameFields) > 0 && named == len(fam.nameFields):
		return 0.80
	case named > 0:
		return 0.70
	default:
		return 0.50
	}
}

// hasIDSubstitute reports whether a missing name field is covered by a
// resolved identifier. A card_id also covers board_name: a resolved card
// pins its board.
func hasIDSubstitute(args map[string]any, fam family, field string) bool {
	var idFields []string
	switch field {
	case "card_name":
		idFields = []string{"card_id"}
	case "board_name":
		idFields = []string{"board_id", "card_id"}
	case "event_title":
		idFields = []string{"event_id"}
	default:
		return false
	}
	for _, idField := range idFields {
		for _, f := range fam.idFields {
			if f == idField {
				if v, ok := stringArg(args, idField); ok && v != "" {
					return true
				}
			}
		}
	}
	return false
}

func present(args map[string]any, field string) bool {
	v, ok := stringArg(args, field)
	return ok && strings.TrimSpace(v) != ""
}

func stringArg(args map[string]any, field string) (string, bool) {
	raw, ok := args[field]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}
