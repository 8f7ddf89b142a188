// Package audit records every routing and execution decision as an
// append-only trail and answers explainability queries over it.
//
// The recorder observes the pipeline without being a dependency of it: the
// analyzer, planner, builder, and executor emit events into it, and records
// are written fire-and-forget. Explain reconstructs a per-task trace in
// event order; Statistics aggregates outcomes across tasks.
package audit
