// Package store provides the persistence backings for task execution
// records and the audit trail: an in-memory store for tests and embedded
// use, a SQLite-backed store via GORM for durable state, and a Redis
// read-through cache that fronts any task store for cheap status polling.
package store
