// Package warehouse defines the narrow surface the replication engine needs
// from a data warehouse: run a catalog query, run a mutating statement, and
// classify failures. Implementations live in the bigquery and emulator
// sub-packages.
package warehouse

import "context"

// Row is a single result row keyed by lower-cased column name.
type Row map[string]any

// Client executes statements against one warehouse project.
type Client interface {
	// Query runs a read-only statement and returns all result rows.
	Query(ctx context.Context, stmt string) ([]Row, error)

	// Exec runs a mutating DDL statement and waits for it to complete.
	Exec(ctx context.Context, stmt string) error

	// Close releases any underlying connections.
	Close() error
}

// StringField extracts a string column from a row, tolerating missing or
// differently-typed values.
func (r Row) StringField(name string) string {
	v, ok := r[name]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// BoolField extracts a bool column from a row.
func (r Row) BoolField(name string) bool {
	v, ok := r[name]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		return false
	}
	return b
}
