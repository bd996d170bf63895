// Package batch applies bulk create/update/delete operations item by item.
//
// Execution is strictly sequential: item N+1 does not start until item N's
// upstream call resolves, so result indices always correspond to input
// indices and callers can rely on that mapping. One item's failure never
// rolls back or blocks independent items.
package batch

import (
	"context"
	"log/slog"
	"strings"

	"github.com/wrenholt/libris/internal/apperr"
	"github.com/wrenholt/libris/internal/ops"
)

// Item is one unit of work inside a bulk operation, independently validated
// and independently reported.
type Item struct {
	ID     int            `json:"id,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Request describes a bulk run over one entity type.
type Request struct {
	Operation       string // bulk_create, bulk_update, bulk_delete
	Entity          ops.Entity
	Items           []Item
	ContinueOnError bool
	DryRun          bool
}

// ItemResult reports the outcome of a single item, in input order.
type ItemResult struct {
	Index   int            `json:"index"`
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ops.ErrorBody `json:"error,omitempty"`
}

// Result aggregates a bulk run. When Aborted is true the run stopped at the
// first failure and Results covers only the items processed so far.
type Result struct {
	Operation string       `json:"operation"`
	Entity    string       `json:"entity_type"`
	DryRun    bool         `json:"dry_run,omitempty"`
	Aborted   bool         `json:"aborted,omitempty"`
	Results   []ItemResult `json:"results"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Total     int          `json:"total"`
}

// Executor runs batches through the operation router.
type Executor struct {
	router *ops.Router
	log    *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(router *ops.Router, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{router: router, log: log}
}

// operationFor maps a bulk operation name onto the router verb.
func operationFor(bulk string) (ops.Operation, error) {
	switch strings.TrimSpace(bulk) {
	case "bulk_create":
		return ops.OpCreate, nil
	case "bulk_update":
		return ops.OpUpdate, nil
	case "bulk_delete":
		return ops.OpDelete, nil
	}
	return "", apperr.Validation("unknown batch operation: %q", bulk)
}

// Run executes the batch. It never returns a Go error; the per-item and
// aggregate outcomes carry all failure information.
func (e *Executor) Run(ctx context.Context, req Request) Result {
	res := Result{
		Operation: req.Operation,
		Entity:    string(req.Entity),
		DryRun:    req.DryRun,
		Total:     len(req.Items),
	}

	op, err := operationFor(req.Operation)
	if err != nil {
		// A malformed batch fails every item the same way, before any
		// network call.
		for i := range req.Items {
			res.Results = append(res.Results, failedItem(i, req.Operation, err))
		}
		res.Failed = len(req.Items)
		return res
	}
	if !req.Entity.Valid() {
		verr := apperr.Validation("unknown entity_type: %q", string(req.Entity))
		for i := range req.Items {
			res.Results = append(res.Results, failedItem(i, req.Operation, verr))
		}
		res.Failed = len(req.Items)
		return res
	}

	for i, item := range req.Items {
		opReq := ops.Request{
			Operation: op,
			Entity:    req.Entity,
			ID:        item.ID,
			Fields:    item.Fields,
		}

		var ir ItemResult
		if req.DryRun {
			if verr := ops.Validate(opReq); verr != nil {
				ir = failedItem(i, string(op), verr)
			} else {
				ir = ItemResult{Index: i, Success: true}
			}
		} else {
			env := e.router.Execute(ctx, opReq)
			ir = ItemResult{Index: i, Success: env.Success, Data: env.Data, Error: env.Error}
		}

		res.Results = append(res.Results, ir)
		if ir.Success {
			res.Succeeded++
		} else {
			res.Failed++
			if !req.ContinueOnError {
				res.Aborted = true
				e.log.Warn("batch aborted on first failure",
					slog.Int("index", i),
					slog.String("operation", req.Operation),
					slog.String("entity", string(req.Entity)))
				break
			}
		}

		if ctx.Err() != nil {
			res.Aborted = true
			break
		}
	}
	return res
}

func failedItem(index int, operation string, err error) ItemResult {
	env := ops.Fail(operation, err)
	return ItemResult{Index: index, Success: false, Error: env.Error}
}
