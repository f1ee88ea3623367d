// Package bulk implements the batched-operation pipeline for small,
// LLM-initiated bulk mail actions: one list page and one batch call per
// confirmed turn, with progress persisted between turns.
package bulk

import (
	"encoding/json"
	"fmt"

	"github.com/majordomo-labs/majordomo/internal/pending"
)

// Hard limits on a bulk operation.
const (
	// MaxTotalItems rejects operations whose estimate is too large for the
	// interactive pipeline; the dedicated mail flows handle bigger jobs.
	MaxTotalItems = 200

	MinBatchSize = 5
	MaxBatchSize = 20
)

// ClampBatchSize bounds a requested batch size to [MinBatchSize, MaxBatchSize].
func ClampBatchSize(n int) int {
	if n < MinBatchSize {
		return MinBatchSize
	}
	if n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}

// State is the durable record of one bulk operation. Remaining holds
// placeholder ids sized to the original estimate so progress reporting does
// not depend on how many real ids have been fetched.
type State struct {
	OpID           string         `json:"op_id"`
	Domain         string         `json:"domain"`
	Action         string         `json:"action"`
	Query          string         `json:"query"`
	BatchSize      int            `json:"batch_size"`
	TotalEstimated int            `json:"total_estimated_count"`
	Processed      int            `json:"processed"`
	Errors         int            `json:"errors"`
	Remaining      []string       `json:"remaining_items"`
	Metadata       map[string]any `json:"metadata"`
}

// Placeholders builds the remaining-items list for an estimate.
func Placeholders(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("item-%d", i+1)
	}
	return out
}

// Record serializes the state into a pending-store record.
func (s *State) Record() (pending.Record, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var rec pending.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// StateFromRecord is the inverse of Record.
func StateFromRecord(rec pending.Record) (*State, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	return &s, nil
}
