package bulk

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/majordomo-labs/majordomo/internal/faults"
	"github.com/majordomo-labs/majordomo/internal/observability"
	"github.com/majordomo-labs/majordomo/internal/pending"
)

// Controller owns the bulk-operation lifecycle: start, one batch per
// confirmed turn, cancel. All durable state lives in the pending store
// under the bulk flow.
type Controller struct {
	store    *pending.Store
	registry *Registry
	log      *observability.Logger
	metrics  *observability.Metrics
}

func NewController(store *pending.Store, registry *Registry, log *observability.Logger, metrics *observability.Metrics) *Controller {
	return &Controller{store: store, registry: registry, log: log, metrics: metrics}
}

// Active reports whether the user has a bulk operation in flight.
func (c *Controller) Active(userID int64) bool {
	return c.store.Get(pending.FlowBulkOperation, userID) != nil
}

// Start prepares an operation and fetches the first id page. Nothing is
// processed; the user must say continue. Returns the prompt to show.
func (c *Controller) Start(ctx context.Context, userID int64, domain, action string, params map[string]any, batchSize int) (string, error) {
	adapter, err := c.registry.Get(domain, action)
	if err != nil {
		return "", faults.New(faults.KindValidation,
			fmt.Sprintf("unknown bulk operation %s:%s; supported: %s", domain, action, strings.Join(c.registry.Operations(), ", ")))
	}

	pc, err := adapter.Prepare(params)
	if err != nil {
		return "", err
	}

	// Exactly one list call: fill the buffer without taking items.
	if _, err := adapter.NextBatch(ctx, pc, 0, 0); err != nil {
		return "", err
	}

	estimate := adapter.TotalCount(pc)
	if estimate == 0 {
		return "", faults.New(faults.KindValidation, "no items match that query")
	}
	if estimate > MaxTotalItems {
		return "", faults.New(faults.KindValidation,
			fmt.Sprintf("that matches about %d items, more than the %d I can handle in one go; narrow your query", estimate, MaxTotalItems))
	}

	state := &State{
		OpID:           uuid.NewString(),
		Domain:         domain,
		Action:         action,
		Query:          pc.Query,
		BatchSize:      ClampBatchSize(batchSize),
		TotalEstimated: estimate,
		Remaining:      Placeholders(estimate),
		Metadata:       pc.Metadata,
	}
	rec, err := state.Record()
	if err != nil {
		return "", faults.Wrap(faults.KindInternal, "serialize bulk state", err)
	}
	c.store.Set(pending.FlowBulkOperation, userID, rec)

	c.log.Info(ctx, "bulk operation started",
		"op_id", state.OpID, "domain", domain, "action", action, "estimate", estimate)
	return Started(state), nil
}

// Continue runs exactly one batch of the active operation.
func (c *Controller) Continue(ctx context.Context, userID int64) (string, error) {
	rec := c.store.Get(pending.FlowBulkOperation, userID)
	if rec == nil {
		return "", faults.New(faults.KindInternal, "no active bulk operation")
	}
	state, err := StateFromRecord(rec)
	if err != nil {
		c.store.Clear(pending.FlowBulkOperation, userID)
		return "", faults.Wrap(faults.KindInternal, "corrupt bulk state", err)
	}

	adapter, err := c.registry.Get(state.Domain, state.Action)
	if err != nil {
		c.store.Clear(pending.FlowBulkOperation, userID)
		return "", faults.Wrap(faults.KindInternal, "bulk adapter vanished", err)
	}

	pc := &PreparedContext{Query: state.Query, Metadata: state.Metadata}
	items, err := adapter.NextBatch(ctx, pc, state.BatchSize, state.Processed)
	if err != nil {
		return "", c.batchError(ctx, userID, state, err)
	}

	results, err := adapter.ExecuteBatch(ctx, items, pc)
	if err != nil {
		return "", c.batchError(ctx, userID, state, err)
	}

	done := len(items)
	for _, r := range results {
		if r.Err != nil {
			state.Errors++
		}
	}
	state.Processed += done
	if done >= len(state.Remaining) {
		state.Remaining = nil
	} else {
		state.Remaining = state.Remaining[done:]
	}
	state.Metadata = pc.Metadata

	c.metrics.BulkBatches.WithLabelValues(state.Domain, state.Action).Inc()

	// Exhausted source counts as done even when the estimate overshot.
	token, _ := state.Metadata["page_token"].(string)
	buffered := len(stringSlice(state.Metadata["buffer"]))
	exhausted := token == pageTokenDone && buffered == 0

	if len(state.Remaining) == 0 || done == 0 || exhausted && done < state.BatchSize {
		c.store.Clear(pending.FlowBulkOperation, userID)
		c.log.Info(ctx, "bulk operation completed",
			"op_id", state.OpID, "processed", state.Processed, "errors", state.Errors)
		return Completed(state), nil
	}

	rec, err = state.Record()
	if err != nil {
		c.store.Clear(pending.FlowBulkOperation, userID)
		return "", faults.Wrap(faults.KindInternal, "serialize bulk state", err)
	}
	c.store.Set(pending.FlowBulkOperation, userID, rec)
	return InProgress(state), nil
}

// Cancel clears the active operation and summarizes what was done.
func (c *Controller) Cancel(ctx context.Context, userID int64) string {
	rec := c.store.Get(pending.FlowBulkOperation, userID)
	c.store.Clear(pending.FlowBulkOperation, userID)
	if rec == nil {
		return "Nothing to cancel."
	}
	state, err := StateFromRecord(rec)
	if err != nil {
		return "Cancelled."
	}
	c.log.Info(ctx, "bulk operation cancelled", "op_id", state.OpID, "processed", state.Processed)
	return Cancelled(state)
}

// batchError decides whether the failure is terminal. Auth failures clear
// the state; anything else keeps it so the user can retry with continue.
func (c *Controller) batchError(ctx context.Context, userID int64, state *State, err error) error {
	if faults.Is(err, faults.KindAuth) {
		c.store.Clear(pending.FlowBulkOperation, userID)
		c.log.Warn(ctx, "bulk operation aborted on auth error", "op_id", state.OpID, "error", err)
		return faults.Wrap(faults.KindAuth, "bulk operation aborted", err)
	}
	c.log.Warn(ctx, "bulk batch failed, state kept", "op_id", state.OpID, "error", err)
	return faults.Wrap(faults.KindTransient, "batch failed; say continue to retry or cancel to stop", err)
}
