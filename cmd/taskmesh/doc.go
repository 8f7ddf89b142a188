// Command taskmesh is the CLI entry point for the orchestration engine.
//
// Usage:
//
//	taskmesh analyze "Fix the login bug"        # classify without executing
//	taskmesh run "Fix the login bug"            # plan and execute
//	taskmesh run --dry-run "Fix the login bug"  # plan only
//	taskmesh explain <task-id>                  # decision trace for a task
//	taskmesh stats                              # aggregate statistics
//	taskmesh version                            # version information
//
// Agents are backed by the built-in local provider unless the surrounding
// application wires real ones; the CLI is primarily a planning, replay, and
// inspection tool.
package main
