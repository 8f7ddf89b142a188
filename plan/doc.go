// Package plan expands a routing decision into an ordered execution plan:
// concrete steps with dependency edges and duration estimates.
//
// Named workflow templates are data tables of stages mapped positionally
// onto the selected agents. Dependencies may only reference earlier steps,
// which keeps every produced plan acyclic by construction.
package plan
