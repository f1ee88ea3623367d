// Package pending persists per-user flow records. Each flow owns one map
// from user id to a JSON-safe record, mirrored to one file on disk so
// multi-turn procedures survive process restarts.
package pending

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// Flow names. Each maps to one JSON file under the data directory.
const (
	FlowToolConfirm       = "pending_tool_confirm"
	FlowTrelloComment     = "pending_trello_comment"
	FlowTrelloDispatch    = "pending_trello_dispatch"
	FlowConfidenceClarify = "pending_confidence_clarify"
	FlowGmailDelete       = "pending_gmail_delete"
	FlowGmailMarkRead     = "pending_gmail_mark_read"
	FlowGmailSpamClean    = "pending_gmail_spam_clean"
	FlowGmailSend         = "pending_gmail_send"
	FlowCalendarCancel    = "pending_calendar_cancel"
	FlowCalendarNote      = "pending_calendar_note"
	FlowBulkOperation     = "pending_bulk_operation"
)

// AllFlows lists every flow with a durable file, in no particular order.
var AllFlows = []string{
	FlowToolConfirm,
	FlowTrelloComment,
	FlowTrelloDispatch,
	FlowConfidenceClarify,
	FlowGmailDelete,
	FlowGmailMarkRead,
	FlowGmailSpamClean,
	FlowGmailSend,
	FlowCalendarCancel,
	FlowCalendarNote,
	FlowBulkOperation,
}

// Record is a JSON-safe pending flow record.
type Record map[string]any

// savedAtKey stamps every record on write so SweepStale can age it out.
const savedAtKey = "saved_at"

// flowState is the in-memory mirror of one flow's file.
type flowState struct {
	mu     sync.Mutex
	loaded bool
	users  map[string]Record
}

// Store holds every flow's pending records. Each flow has its own lock;
// a turn for one user is serialized upstream, so records never see
// concurrent writers for the same (flow, user) pair.
type Store struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	flows map[string]*flowState
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now, flows: make(map[string]*flowState)}, nil
}

func (s *Store) flow(name string) *flowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	fs, ok := s.flows[name]
	if !ok {
		fs = &flowState{users: make(map[string]Record)}
		s.flows[name] = fs
	}
	return fs
}

func (s *Store) path(flow string) string {
	return filepath.Join(s.dir, flow+".json")
}

// load rehydrates the flow's map from disk on first access. Malformed or
// missing files yield an empty map.
func (s *Store) load(flow string, fs *flowState) {
	if fs.loaded {
		return
	}
	fs.loaded = true
	data, err := os.ReadFile(s.path(flow))
	if err != nil {
		return
	}
	var users map[string]Record
	if err := json.Unmarshal(data, &users); err != nil {
		return
	}
	fs.users = users
}

// flush writes the flow's entire map to its file. Failures are swallowed:
// the in-memory state stays authoritative for the rest of the turn.
func (s *Store) flush(flow string, fs *flowState) {
	data, err := json.MarshalIndent(fs.users, "", "  ")
	if err != nil {
		return
	}
	tmp := s.path(flow) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, s.path(flow))
}

// Get returns a deep copy of the user's record for the flow, or nil.
func (s *Store) Get(flow string, userID int64) Record {
	fs := s.flow(flow)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	s.load(flow, fs)

	rec, ok := fs.users[userKey(userID)]
	if !ok {
		return nil
	}
	return deepCopy(rec)
}

// Set stores the record and synchronously flushes the flow's file.
func (s *Store) Set(flow string, userID int64, rec Record) {
	fs := s.flow(flow)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	s.load(flow, fs)

	cp := deepCopy(rec)
	cp[savedAtKey] = s.now().UTC().Format(time.RFC3339)
	fs.users[userKey(userID)] = cp
	s.flush(flow, fs)
}

// Clear deletes the user's record and flushes.
func (s *Store) Clear(flow string, userID int64) {
	fs := s.flow(flow)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	s.load(flow, fs)

	if _, ok := fs.users[userKey(userID)]; !ok {
		return
	}
	delete(fs.users, userKey(userID))
	s.flush(flow, fs)
}

// ClearAll removes every pending record for the user across all flows.
func (s *Store) ClearAll(userID int64) {
	for _, flow := range AllFlows {
		s.Clear(flow, userID)
	}
}

// SweepStale removes records older than maxAge from the named flows and
// returns how many were removed. Only interactive browsing flows should be
// swept; confirmation and continuation records have no timeout. Records
// written before stamping existed are left alone.
func (s *Store) SweepStale(maxAge time.Duration, flows ...string) int {
	cutoff := s.now().Add(-maxAge)
	removed := 0
	for _, flow := range flows {
		fs := s.flow(flow)
		fs.mu.Lock()
		s.load(flow, fs)
		dirty := false
		for key, rec := range fs.users {
			stamp, ok := rec[savedAtKey].(string)
			if !ok {
				continue
			}
			at, err := time.Parse(time.RFC3339, stamp)
			if err != nil || !at.Before(cutoff) {
				continue
			}
			delete(fs.users, key)
			dirty = true
			removed++
		}
		if dirty {
			s.flush(flow, fs)
		}
		fs.mu.Unlock()
	}
	return removed
}

// Count returns the number of pending records for a flow.
func (s *Store) Count(flow string) int {
	fs := s.flow(flow)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	s.load(flow, fs)
	return len(fs.users)
}

func userKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// deepCopy round-trips the record through JSON so callers can never alias
// the stored maps and slices.
func deepCopy(rec Record) Record {
	if rec == nil {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
