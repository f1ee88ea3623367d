package bulk

import "fmt"

// Started is the prompt after a successful start; nothing has run yet.
func Started(s *State) string {
	return fmt.Sprintf("Found about %d items matching %q. I'll work through them %d at a time. Say continue to start, or cancel.",
		s.TotalEstimated, s.Query, s.BatchSize)
}

// InProgress reports one finished batch with work left.
func InProgress(s *State) string {
	return fmt.Sprintf("Processed %d of about %d, %d remaining. Say continue for the next batch, or cancel to stop.",
		s.Processed, s.TotalEstimated, len(s.Remaining))
}

// Completed reports the final tally.
func Completed(s *State) string {
	if s.Errors > 0 {
		return fmt.Sprintf("Done. Processed %d items with %d errors.", s.Processed, s.Errors)
	}
	return fmt.Sprintf("Done. Processed %d items.", s.Processed)
}

// Cancelled summarizes what ran before the user stopped it.
func Cancelled(s *State) string {
	return fmt.Sprintf("Cancelled. Processed %d items; about %d left untouched.", s.Processed, len(s.Remaining))
}
