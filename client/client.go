// Package client is a small consumer-side library for the replica-gateway
// HTTP API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	// HttpClient overrides the transport; a client with sane timeouts is
	// built otherwise.
	HttpClient *http.Client

	Username  string
	Password  string
	TlsConfig *tls.Config
}

type Client struct {
	httpClient *http.Client
	baseUrl    string
	username   string
	password   string
}

func New(target string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = &Options{}
	}

	if !strings.Contains(target, "://") {
		target = "http://" + target
	}

	parsed, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway address: %w", err)
	}
	if parsed.Port() == "" {
		// use port 8098 by default
		parsed.Host = net.JoinHostPort(parsed.Hostname(), "8098")
	}

	httpClient := opts.HttpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 2 * time.Minute,
			Transport: &http.Transport{
				TLSClientConfig: opts.TlsConfig,
			},
		}
	}

	return &Client{
		httpClient: httpClient,
		baseUrl:    strings.TrimSuffix(parsed.String(), "/"),
		username:   opts.Username,
		password:   opts.Password,
	}, nil
}

type Operation struct {
	Kind     string `json:"kind"`
	Location string `json:"location"`
}

type Topology struct {
	Replicas []string `json:"replicas"`
	Primary  string   `json:"primary,omitempty"`
}

type ReconcileOptions struct {
	Replicas      []string
	Primary       string
	CreateDataset bool
}

type ReconcileResult struct {
	Outcome           string      `json:"outcome"`
	Topology          Topology    `json:"topology"`
	CreatedDataset    bool        `json:"createdDataset,omitempty"`
	AppliedOperations []Operation `json:"appliedOperations,omitempty"`
}

type SessionDataset struct {
	Project    string    `json:"project"`
	Dataset    string    `json:"dataset"`
	Topology   Topology  `json:"topology"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

type Session struct {
	SessionId string           `json:"sessionId"`
	StartedAt time.Time        `json:"startedAt"`
	Datasets  []SessionDataset `json:"datasets"`
}

// ServerError is an error response decoded from the gateway.
type ServerError struct {
	StatusCode        int         `json:"-"`
	Code              string      `json:"code,omitempty"`
	Message           string      `json:"message,omitempty"`
	Resource          string      `json:"resource,omitempty"`
	AppliedOperations []Operation `json:"appliedOperations,omitempty"`
	Debug             string      `json:"debug,omitempty"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s (status: %d, code: %s, resource: %s)",
		e.Message, e.StatusCode, e.Code, e.Resource)
}

// Reconcile converges a dataset onto the requested replication topology.
func (c *Client) Reconcile(ctx context.Context, project, dataset string, opts *ReconcileOptions) (*ReconcileResult, error) {
	reqBody := struct {
		Replicas      []string `json:"replicas"`
		Primary       string   `json:"primary,omitempty"`
		CreateDataset bool     `json:"createDataset,omitempty"`
	}{
		Replicas:      opts.Replicas,
		Primary:       opts.Primary,
		CreateDataset: opts.CreateDataset,
	}

	var result ReconcileResult
	err := c.doJson(ctx, http.MethodPost, c.replicationPath(project, dataset), &reqBody, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Plan returns the operations that would converge the dataset, changing
// nothing.
func (c *Client) Plan(ctx context.Context, project, dataset string, replicas []string, primary string) ([]Operation, error) {
	reqBody := struct {
		Replicas []string `json:"replicas"`
		Primary  string   `json:"primary,omitempty"`
	}{
		Replicas: replicas,
		Primary:  primary,
	}

	var result struct {
		Operations []Operation `json:"operations"`
	}
	err := c.doJson(ctx, http.MethodPost, c.replicationPath(project, dataset)+":plan", &reqBody, &result)
	if err != nil {
		return nil, err
	}
	return result.Operations, nil
}

// GetTopology reads the observed topology straight from the catalog.
func (c *Client) GetTopology(ctx context.Context, project, dataset string) (*Topology, error) {
	var result Topology
	err := c.doJson(ctx, http.MethodGet, c.replicationPath(project, dataset), nil, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSession returns the gateway's current session and its resolved datasets.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	var result Session
	err := c.doJson(ctx, http.MethodGet, "/v1/session", nil, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) replicationPath(project, dataset string) string {
	return fmt.Sprintf("/v1/projects/%s/datasets/%s/replication",
		url.PathEscape(project), url.PathEscape(dataset))
}

func (c *Client) doJson(ctx context.Context, method, path string, reqBody, respBody any) error {
	var bodyReader *bytes.Buffer
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewBuffer(encoded)
	} else {
		bodyReader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseUrl+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		serverErr := &ServerError{StatusCode: resp.StatusCode}
		if decodeErr := json.NewDecoder(resp.Body).Decode(serverErr); decodeErr != nil {
			serverErr.Message = resp.Status
		}
		return serverErr
	}

	if respBody != nil {
		return json.NewDecoder(resp.Body).Decode(respBody)
	}
	return nil
}
