package bigquery

import (
	"errors"
	"fmt"
	"testing"

	bq "cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/warehouselabs/replica-gateway/warehouse"
	"google.golang.org/api/googleapi"
)

func TestClassifyHTTPErrors(t *testing.T) {
	cases := []struct {
		status int
		code   warehouse.ErrorCode
	}{
		{400, warehouse.CodeInvalidArgument},
		{403, warehouse.CodeAccessDenied},
		{404, warehouse.CodeNotFound},
		{409, warehouse.CodeAlreadyExists},
		{429, warehouse.CodeUnavailable},
		{500, warehouse.CodeInternal},
		{503, warehouse.CodeUnavailable},
		{418, warehouse.CodeUnknown},
	}

	for _, tc := range cases {
		err := classifyError(&googleapi.Error{Code: tc.status, Message: "boom"})
		assert.Equal(t, tc.code, warehouse.CodeOf(err), "status %d", tc.status)
	}
}

func TestClassifyWrappedHTTPError(t *testing.T) {
	inner := &googleapi.Error{Code: 404, Message: "dataset not found"}
	err := classifyError(fmt.Errorf("job failed: %w", inner))
	assert.Equal(t, warehouse.CodeNotFound, warehouse.CodeOf(err))
}

func TestClassifyJobReasons(t *testing.T) {
	cases := []struct {
		reason string
		code   warehouse.ErrorCode
	}{
		{"notFound", warehouse.CodeNotFound},
		{"duplicate", warehouse.CodeAlreadyExists},
		{"accessDenied", warehouse.CodeAccessDenied},
		{"invalidQuery", warehouse.CodeInvalidArgument},
		{"rateLimitExceeded", warehouse.CodeUnavailable},
		{"backendError", warehouse.CodeInternal},
	}

	for _, tc := range cases {
		err := classifyError(&bq.Error{Reason: tc.reason, Message: "boom"})
		assert.Equal(t, tc.code, warehouse.CodeOf(err), "reason %s", tc.reason)
	}
}

func TestClassifyByMessage(t *testing.T) {
	err := classifyError(errors.New("Already Exists: Dataset proj:sales replica us-east1"))
	assert.Equal(t, warehouse.CodeAlreadyExists, warehouse.CodeOf(err))

	err = classifyError(errors.New("Not found: Dataset proj:sales"))
	assert.Equal(t, warehouse.CodeNotFound, warehouse.CodeOf(err))

	err = classifyError(errors.New("something odd"))
	assert.Equal(t, warehouse.CodeUnknown, warehouse.CodeOf(err))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(classifyError(&googleapi.Error{Code: 503})))
	assert.True(t, isTransient(classifyError(&bq.Error{Reason: "backendError"})))
	assert.False(t, isTransient(classifyError(&googleapi.Error{Code: 404})))
	assert.False(t, isTransient(classifyError(&bq.Error{Reason: "duplicate"})))
}
