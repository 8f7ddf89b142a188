// Package types defines the core data model shared by every TaskMesh
// component: intent analysis results, routing decisions, execution plans,
// task execution records, audit records, and the unified error type.
//
// The types package is the lowest-level package with no internal
// dependencies, so the collaborator interfaces consumed by the engine
// (Agent, AgentProvider, TaskStore, AuditStore, Clock) live here to avoid
// circular imports.
package types
