package server_v1

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/warehouselabs/replica-gateway/replication"
	"github.com/warehouselabs/replica-gateway/warehouse"
	"go.uber.org/zap"
)

type StatusError struct {
	S Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (status: %d, code: %s, resource: %s)",
		e.S.Message,
		e.S.StatusCode,
		e.S.Code,
		e.S.Resource)
}

type Status struct {
	StatusCode        int             `json:"-"`
	Code              ErrorCode       `json:"code,omitempty"`
	Message           string          `json:"message,omitempty"`
	Resource          string          `json:"resource,omitempty"`
	AppliedOperations []OperationJson `json:"appliedOperations,omitempty"`
	Debug             string          `json:"debug,omitempty"`
}

func (e Status) Err() error {
	return &StatusError{S: e}
}

type ErrorHandler struct {
	Logger *zap.Logger
	Debug  bool
}

func (e ErrorHandler) tryAttachExtraContext(st *Status, baseErr error) *Status {
	if baseErr == nil {
		return st
	}

	if e.Debug {
		st.Debug = baseErr.Error()
	}

	return st
}

func (e ErrorHandler) NewInvalidPathStatus(message string) *Status {
	st := &Status{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeInvalidArgument,
		Message:    message,
	}
	return st
}

func (e ErrorHandler) NewInvalidBodyStatus(baseErr error) *Status {
	st := &Status{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeInvalidArgument,
		Message:    "Invalid request body.",
	}
	st = e.tryAttachExtraContext(st, baseErr)
	return st
}

func (e ErrorHandler) NewInvalidTopologyStatus(baseErr *replication.InvalidConfigurationError, resource string) *Status {
	st := &Status{
		StatusCode: http.StatusBadRequest,
		Code:       ErrorCodeInvalidArgument,
		Message:    fmt.Sprintf("Invalid replication topology: %s.", baseErr.Reason),
		Resource:   resource,
	}
	st = e.tryAttachExtraContext(st, baseErr)
	return st
}

func (e ErrorHandler) NewCatalogUnavailableStatus(resource string) *Status {
	st := &Status{
		StatusCode: http.StatusNotFound,
		Code:       ErrorCodeCatalogUnavailable,
		Message: fmt.Sprintf(
			"Replication catalog is not available for dataset '%s'.", resource),
		Resource: resource,
	}
	return st
}

func (e ErrorHandler) NewDatasetNotFoundStatus(baseErr error, resource string) *Status {
	st := &Status{
		StatusCode: http.StatusNotFound,
		Code:       ErrorCodeNotFound,
		Message:    fmt.Sprintf("Dataset '%s' was not found.", resource),
		Resource:   resource,
	}
	st = e.tryAttachExtraContext(st, baseErr)
	return st
}

func (e ErrorHandler) NewAccessDeniedStatus(baseErr error, resource string) *Status {
	st := &Status{
		StatusCode: http.StatusForbidden,
		Code:       ErrorCodeAccessDenied,
		Message: fmt.Sprintf(
			"The warehouse denied access while operating on dataset '%s'.", resource),
		Resource: resource,
	}
	st = e.tryAttachExtraContext(st, baseErr)
	return st
}

func (e ErrorHandler) NewApplyFailedStatus(baseErr *replication.ApplyError, resource string) *Status {
	st := &Status{
		StatusCode: http.StatusBadGateway,
		Code:       ErrorCodeApplyFailed,
		Message: fmt.Sprintf(
			"Failed to apply replication operation %s to dataset '%s'.",
			baseErr.Failed, resource),
		Resource:          resource,
		AppliedOperations: operationsJson(baseErr.Applied),
	}
	st = e.tryAttachExtraContext(st, baseErr)
	return st
}

func (e ErrorHandler) NewCatalogQueryStatus(baseErr *replication.CatalogQueryError, resource string) *Status {
	st := &Status{
		StatusCode: http.StatusBadGateway,
		Code:       ErrorCodeCatalogQueryFailed,
		Message: fmt.Sprintf(
			"Failed to query the replication catalog for dataset '%s'.", resource),
		Resource: resource,
	}
	st = e.tryAttachExtraContext(st, baseErr)
	return st
}

func (e ErrorHandler) NewInternalStatus() *Status {
	st := &Status{
		StatusCode: http.StatusInternalServerError,
		Code:       ErrorCodeInternal,
		Message:    "An internal error occurred.",
	}
	return st
}

// NewReconcileErrorStatus maps an error from the reconciliation engine onto
// an HTTP status.
func (e ErrorHandler) NewReconcileErrorStatus(err error, resource string) *Status {
	var invalidErr *replication.InvalidConfigurationError
	if errors.As(err, &invalidErr) {
		return e.NewInvalidTopologyStatus(invalidErr, resource)
	}

	if errors.Is(err, replication.ErrCatalogUnavailable) {
		return e.NewCatalogUnavailableStatus(resource)
	}

	if warehouse.CodeOf(err) == warehouse.CodeAccessDenied {
		return e.NewAccessDeniedStatus(err, resource)
	}

	var applyErr *replication.ApplyError
	if errors.As(err, &applyErr) {
		// An add against a dataset that does not exist means the dataset
		// itself is missing, not that the apply half-failed.
		if warehouse.CodeOf(applyErr.Cause) == warehouse.CodeNotFound {
			return e.NewDatasetNotFoundStatus(applyErr, resource)
		}
		return e.NewApplyFailedStatus(applyErr, resource)
	}

	var queryErr *replication.CatalogQueryError
	if errors.As(err, &queryErr) {
		return e.NewCatalogQueryStatus(queryErr, resource)
	}

	e.Logger.Error("handling unexpected reconciliation error",
		zap.Error(err),
		zap.String("resource", resource))
	return e.NewInternalStatus()
}
