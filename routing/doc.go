// Package routing maps an intent analysis to a routing decision: which
// agents handle the task and under which workflow topology.
//
// The intent-to-agent mapping and the named workflow templates are plain
// data tables, so new routes are additions to the tables rather than logic
// changes. Given the same inputs and tables, Route is deterministic and
// free of side effects.
package routing
