// Package bigquery implements the warehouse client against Google BigQuery.
// Statements run as interactive query jobs; job failures are classified into
// warehouse error codes and transient backend failures are retried with
// exponential backoff.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	bq "cloud.google.com/go/bigquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/warehouselabs/replica-gateway/warehouse"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type ClientOptions struct {
	Logger    *zap.Logger
	ProjectID string

	// CredentialsJSON holds a service account key. When empty, application
	// default credentials are used.
	CredentialsJSON []byte

	// Endpoint overrides the BigQuery API endpoint, for tests against a
	// local stand-in.
	Endpoint string

	// MaxRetryElapsed bounds how long a single statement is retried when
	// the backend reports transient failures. Defaults to one minute.
	MaxRetryElapsed time.Duration
}

type Client struct {
	logger          *zap.Logger
	client          *bq.Client
	maxRetryElapsed time.Duration
}

var _ warehouse.Client = (*Client)(nil)

func NewClient(ctx context.Context, opts *ClientOptions) (*Client, error) {
	if opts.ProjectID == "" {
		return nil, errors.New("a project id must be provided")
	}

	var clientOpts []option.ClientOption
	if len(opts.CredentialsJSON) > 0 {
		clientOpts = append(clientOpts, option.WithCredentialsJSON(opts.CredentialsJSON))
	}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	client, err := bq.NewClient(ctx, opts.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}

	maxRetryElapsed := opts.MaxRetryElapsed
	if maxRetryElapsed == 0 {
		maxRetryElapsed = 1 * time.Minute
	}

	return &Client{
		logger:          opts.Logger,
		client:          client,
		maxRetryElapsed: maxRetryElapsed,
	}, nil
}

func (c *Client) Query(ctx context.Context, stmt string) ([]warehouse.Row, error) {
	var rows []warehouse.Row
	err := c.runWithRetry(ctx, stmt, func() error {
		var err error
		rows, err = c.runQuery(ctx, stmt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) Exec(ctx context.Context, stmt string) error {
	return c.runWithRetry(ctx, stmt, func() error {
		_, err := c.runQuery(ctx, stmt)
		return err
	})
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) runQuery(ctx context.Context, stmt string) ([]warehouse.Row, error) {
	query := c.client.Query(stmt)

	it, err := query.Read(ctx)
	if err != nil {
		return nil, classifyError(err)
	}

	var rows []warehouse.Row
	for {
		var values map[string]bq.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyError(err)
		}

		row := make(warehouse.Row, len(values))
		for name, value := range values {
			row[strings.ToLower(name)] = value
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func (c *Client) runWithRetry(ctx context.Context, stmt string, fn func() error) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}

		c.logger.Warn("transient bigquery failure, retrying",
			zap.Int("attempt", attempt),
			zap.String("statement", stmt),
			zap.Error(err))
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxRetryElapsed

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// classifyError maps BigQuery API failures onto warehouse error codes.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return warehouse.NewStatementError(codeFromHTTPStatus(apiErr.Code), apiErr.Message, err)
	}

	var bqErr *bq.Error
	if errors.As(err, &bqErr) {
		return warehouse.NewStatementError(codeFromReason(bqErr.Reason), bqErr.Message, err)
	}

	// Job-level failures sometimes only carry their detail in the message.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "already exists"):
		return warehouse.NewStatementError(warehouse.CodeAlreadyExists, err.Error(), err)
	case strings.Contains(msg, "not found"):
		return warehouse.NewStatementError(warehouse.CodeNotFound, err.Error(), err)
	}

	return warehouse.NewStatementError(warehouse.CodeUnknown, err.Error(), err)
}

func codeFromHTTPStatus(status int) warehouse.ErrorCode {
	switch status {
	case 400:
		return warehouse.CodeInvalidArgument
	case 401, 403:
		return warehouse.CodeAccessDenied
	case 404:
		return warehouse.CodeNotFound
	case 409:
		return warehouse.CodeAlreadyExists
	case 429, 503:
		return warehouse.CodeUnavailable
	case 500, 502:
		return warehouse.CodeInternal
	}
	return warehouse.CodeUnknown
}

func codeFromReason(reason string) warehouse.ErrorCode {
	switch reason {
	case "notFound":
		return warehouse.CodeNotFound
	case "duplicate":
		return warehouse.CodeAlreadyExists
	case "accessDenied":
		return warehouse.CodeAccessDenied
	case "invalid", "invalidQuery":
		return warehouse.CodeInvalidArgument
	case "rateLimitExceeded", "quotaExceeded", "jobRateLimitExceeded":
		return warehouse.CodeUnavailable
	case "backendError", "internalError":
		return warehouse.CodeInternal
	}
	return warehouse.CodeUnknown
}

func isTransient(err error) bool {
	switch warehouse.CodeOf(err) {
	case warehouse.CodeUnavailable, warehouse.CodeInternal:
		return true
	}
	return false
}
