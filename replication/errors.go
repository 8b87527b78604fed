package replication

import (
	"errors"
	"fmt"
)

// ErrCatalogUnavailable is returned by topology reads when the warehouse has
// no replication catalog for the dataset, which is the normal state for a
// dataset that does not exist yet. Callers treat it as "no topology" rather
// than as a failure.
var ErrCatalogUnavailable = errors.New("replication catalog unavailable")

// InvalidConfigurationError indicates a desired topology that can never be
// applied, such as a primary outside the replica set. It is always detected
// before any warehouse statement runs.
type InvalidConfigurationError struct {
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return "invalid replication configuration: " + e.Reason
}

// CatalogQueryError wraps an unexpected failure while reading the replication
// catalog. Lookup failures other than the catalog being absent are never
// swallowed.
type CatalogQueryError struct {
	Identity DatasetID
	Cause    error
}

func (e *CatalogQueryError) Error() string {
	return fmt.Sprintf("failed to read replication catalog for %s: %s", e.Identity, e.Cause)
}

func (e *CatalogQueryError) Unwrap() error {
	return e.Cause
}

// ApplyError reports a replication plan that failed part-way through.
// Applied holds the operations that had already succeeded, Failed the
// operation that stopped the run.
type ApplyError struct {
	Identity DatasetID
	Applied  []Operation
	Failed   Operation
	Cause    error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("failed to apply replication plan for %s: %s failed after %d operations applied: %s",
		e.Identity, e.Failed, len(e.Applied), e.Cause)
}

func (e *ApplyError) Unwrap() error {
	return e.Cause
}
