// Package intent classifies bulk-control replies without touching the LLM.
package intent

import "strings"

// Intent is the routing decision for a message during an active bulk
// operation.
type Intent string

const (
	Continue Intent = "continue"
	Cancel   Intent = "cancel"
	Unknown  Intent = "unknown"
)

// Keyword order matters: the continue set is checked before the cancel set
// and the first hit wins.
var continueKeywords = []string{
	"continue", "yes", "proceed", "go", "next", "keep going", "resume", "ok", "sure", "yep",
}

var cancelKeywords = []string{
	"cancel", "stop", "abort", "no", "halt", "quit", "end", "don't", "never mind",
}

// Route classifies a raw message by case-insensitive substring match.
func Route(message string) Intent {
	lowered := strings.ToLower(message)
	for _, kw := range continueKeywords {
		if strings.Contains(lowered, kw) {
			return Continue
		}
	}
	for _, kw := range cancelKeywords {
		if strings.Contains(lowered, kw) {
			return Cancel
		}
	}
	return Unknown
}

// IsAffirmative reports whether a message is an explicit confirmation token
// for a DRY_RUN prompt (YES / PROCEED / CONTINUE).
func IsAffirmative(message string) bool {
	switch strings.ToUpper(strings.TrimSpace(message)) {
	case "YES", "Y", "PROCEED", "CONTINUE", "OK", "CONFIRM":
		return true
	}
	return false
}

// IsCancel reports whether a message is an explicit cancel token.
func IsCancel(message string) bool {
	switch strings.ToUpper(strings.TrimSpace(message)) {
	case "CANCEL", "STOP", "ABORT", "NO":
		return true
	}
	return false
}
