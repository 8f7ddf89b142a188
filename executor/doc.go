// Package executor runs execution plans against live agents.
//
// Each plan executes as a ready-queue loop over the step dependency DAG:
// every step whose dependencies are all done is dispatched, independent
// runnable steps run concurrently, and the loop re-evaluates after each
// wave completes. Dependency outputs are fully materialized in a dependent
// step's call context before it starts.
//
// While producing its response an agent may address other agents with the
// @AgentName: convention; the executor parses those requests, invokes the
// targets synchronously with a bounded recursion depth, and records every
// exchange as an AgentMessage.
//
// Transient failures are retried with exponential backoff, then routed to
// a configured fallback agent if one exists. Failures propagate forward
// through the dependency graph and never roll back finished steps, so
// callers always receive whichever outputs completed.
package executor
