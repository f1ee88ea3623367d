// Package flows implements the durable conversation flows that intercept a
// turn before the LLM loop runs: confirmations, clarifications, dispatch
// continuations and the bulk mail operations.
package flows

import (
	"context"
	"encoding/json"

	"github.com/majordomo-labs/majordomo/internal/observability"
	"github.com/majordomo-labs/majordomo/internal/pending"
	"github.com/majordomo-labs/majordomo/internal/tools"
)

// Handler is one flow. Handle claims the turn by returning handled=true;
// the reply is then sent verbatim. A handler with no pending record and no
// matching fresh request returns handled=false and the chain moves on.
type Handler interface {
	Flow() string
	Handle(ctx context.Context, userID int64, text string) (reply string, handled bool, err error)
}

// Chain applies handlers in precedence order; the first claim wins.
type Chain struct {
	handlers []Handler
	log      *observability.Logger
	metrics  *observability.Metrics
}

func NewChain(log *observability.Logger, metrics *observability.Metrics, handlers ...Handler) *Chain {
	return &Chain{handlers: handlers, log: log, metrics: metrics}
}

func (c *Chain) Handle(ctx context.Context, userID int64, text string) (string, bool, error) {
	for _, h := range c.handlers {
		fctx := observability.WithFlow(ctx, h.Flow())
		reply, handled, err := h.Handle(fctx, userID, text)
		if !handled {
			continue
		}
		c.metrics.FlowRouted.WithLabelValues(h.Flow()).Inc()
		if err != nil {
			c.log.Warn(fctx, "flow handler failed", "flow", h.Flow(), "error", err)
		}
		return reply, true, err
	}
	return "", false, nil
}

// replayTool re-invokes a tool through the registry with an argument map.
func replayTool(ctx context.Context, registry *tools.Registry, name string, args map[string]any) (string, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return registry.Execute(ctx, name, raw)
}

// argsFromRecord pulls a nested argument map out of a pending record.
func argsFromRecord(rec pending.Record, key string) map[string]any {
	if m, ok := rec[key].(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	return map[string]any{}
}
