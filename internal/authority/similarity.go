package authority

import (
	"strings"
	"time"
)

// EventCandidate is one calendar event considered against a query.
type EventCandidate struct {
	ID    string
	Title string
	Start time.Time
	End   time.Time
}

// EventQuery is what the user described.
type EventQuery struct {
	Title string
	// Date is the day the user named; zero means no date constraint.
	Date time.Time
	// WindowStart/WindowEnd bound the expected time of day; zero means none.
	WindowStart time.Time
	WindowEnd   time.Time
}

// Component weights for candidate ranking.
const (
	weightTitle  = 0.45
	weightDate   = 0.35
	weightWindow = 0.20

	// winMargin is how far the best candidate must beat the runner-up.
	winMargin = 0.12
	// winFloor is the minimum absolute score for an automatic pick.
	winFloor = 0.85
)

// RankEvents scores candidates against the query and returns the single
// best match only when it beats the runner-up by the margin and clears the
// floor. Otherwise ok is false and the caller should ask the user to pick.
func RankEvents(query EventQuery, candidates []EventCandidate) (best EventCandidate, ok bool) {
	if len(candidates) == 0 {
		return EventCandidate{}, false
	}
	if len(candidates) == 1 {
		c := candidates[0]
		if scoreCandidate(query, c) >= winFloor {
			return c, true
		}
		return EventCandidate{}, false
	}

	type scored struct {
		candidate EventCandidate
		score     float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, scored{c, scoreCandidate(query, c)})
	}
	top, second := 0, -1
	for i := 1; i < len(ranked); i++ {
		if ranked[i].score > ranked[top].score {
			second = top
			top = i
		} else if second < 0 || ranked[i].score > ranked[second].score {
			second = i
		}
	}

	if ranked[top].score < winFloor {
		return EventCandidate{}, false
	}
	if ranked[top].score-ranked[second].score < winMargin {
		return EventCandidate{}, false
	}
	return ranked[top].candidate, true
}

func scoreCandidate(q EventQuery, c EventCandidate) float64 {
	score := weightTitle * titleSimilarity(q.Title, c.Title)

	if !q.Date.IsZero() {
		y1, m1, d1 := q.Date.Date()
		y2, m2, d2 := c.Start.Date()
		if y1 == y2 && m1 == m2 && d1 == d2 {
			score += weightDate
		}
	} else {
		score += weightDate
	}

	if !q.WindowStart.IsZero() && !q.WindowEnd.IsZero() {
		if !c.Start.Before(q.WindowStart) && !c.Start.After(q.WindowEnd) {
			score += weightWindow
		}
	} else {
		score += weightWindow
	}
	return score
}

// titleSimilarity is a cheap fuzzy match: exact beats containment beats
// token overlap.
func titleSimilarity(query, title string) float64 {
	a := strings.ToLower(strings.TrimSpace(query))
	b := strings.ToLower(strings.TrimSpace(title))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1.0
	}
	if strings.Contains(b, a) || strings.Contains(a, b) {
		return 0.85
	}
	return tokenOverlap(a, b)
}

func tokenOverlap(a, b string) float64 {
	aTokens := strings.Fields(a)
	bTokens := strings.Fields(b)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0
	}
	set := make(map[string]bool, len(aTokens))
	for _, t := range aTokens {
		set[t] = true
	}
	shared := 0
	union := len(set)
	for _, t := range bTokens {
		if set[t] {
			shared++
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}
