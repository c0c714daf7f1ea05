// Package stores provides persistence layer implementations for CloudTrim.
// It includes SQLite-based storage with WAL mode, connection pooling,
// embedded migrations, and audit operations for execution records,
// lifecycle events, and realized savings summaries.
package stores
