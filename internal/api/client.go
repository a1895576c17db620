// Package api is the JSON client for the monitoring backend's REST surface.
// Every response arrives in the common {statusCode, message, data} envelope.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fleetmon/internal/model"
)

// Client talks to the backend REST API with bearer auth. A 401 invokes the
// onUnauthorized hook (token invalidation and the login boundary live outside
// this package) in addition to returning the error.
type Client struct {
	baseURL        string
	token          func() string
	httpClient     *http.Client
	onUnauthorized func()
	logger         *slog.Logger
}

// Options configure the client; Token and OnUnauthorized may be nil.
type Options struct {
	Token          func() string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	OnUnauthorized func()
	Logger         *slog.Logger
}

func NewClient(baseURL string, opts Options) *Client {
	if opts.HTTPClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		opts.HTTPClient = &http.Client{Timeout: timeout}
	}
	if opts.Token == nil {
		opts.Token = func() string { return "" }
	}
	if opts.OnUnauthorized == nil {
		opts.OnUnauthorized = func() {}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		token:          opts.Token,
		httpClient:     opts.HTTPClient,
		onUnauthorized: opts.OnUnauthorized,
		logger:         opts.Logger,
	}
}

// ListParams are the filter/sort query parameters accepted by list endpoints.
type ListParams struct {
	Filter    string
	SortBy    string
	SortOrder string
}

func (p ListParams) query() url.Values {
	q := url.Values{}
	if p.Filter != "" {
		q.Set("filter", p.Filter)
	}
	if p.SortBy != "" {
		q.Set("sortBy", p.SortBy)
	}
	if p.SortOrder != "" {
		q.Set("sortOrder", p.SortOrder)
	}
	return q
}

// ListAgents fetches the agent list.
func (c *Client) ListAgents(ctx context.Context, params ListParams) ([]model.Identity, error) {
	var out []model.Identity
	if err := c.get(ctx, "/agents", params.query(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListContainers fetches the container list.
func (c *Client) ListContainers(ctx context.Context, params ListParams) ([]model.Identity, error) {
	var out []model.Identity
	if err := c.get(ctx, "/containers", params.query(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ContainerSnapshot fetches recent metric history and current values for one
// container over an explicit window.
func (c *Client) ContainerSnapshot(ctx context.Context, id int64, window model.TimeRange) (model.EntitySnapshot, error) {
	q := url.Values{}
	q.Set("startTime", window.Start.UTC().Format(time.RFC3339))
	q.Set("endTime", window.End.UTC().Format(time.RFC3339))
	var out model.EntitySnapshot
	if err := c.get(ctx, "/containers/"+strconv.FormatInt(id, 10)+"/metrics", q, &out); err != nil {
		return model.EntitySnapshot{}, err
	}
	return out, nil
}

// ContainerSnapshotRange is ContainerSnapshot with a named quick range.
func (c *Client) ContainerSnapshotRange(ctx context.Context, id int64, r model.QuickRange) (model.EntitySnapshot, error) {
	q := url.Values{}
	q.Set("range", string(r))
	var out model.EntitySnapshot
	if err := c.get(ctx, "/containers/"+strconv.FormatInt(id, 10)+"/metrics", q, &out); err != nil {
		return model.EntitySnapshot{}, err
	}
	return out, nil
}

// ContainerDetail fetches static single-container metadata.
func (c *Client) ContainerDetail(ctx context.Context, id int64) (model.EntityDetail, error) {
	var out model.EntityDetail
	if err := c.get(ctx, "/containers/"+strconv.FormatInt(id, 10), nil, &out); err != nil {
		return model.EntityDetail{}, err
	}
	return out, nil
}

// AgentSnapshot fetches recent metric history for one agent.
func (c *Client) AgentSnapshot(ctx context.Context, id int64, window model.TimeRange) (model.EntitySnapshot, error) {
	q := url.Values{}
	q.Set("startTime", window.Start.UTC().Format(time.RFC3339))
	q.Set("endTime", window.End.UTC().Format(time.RFC3339))
	var out model.EntitySnapshot
	if err := c.get(ctx, "/agents/"+strconv.FormatInt(id, 10)+"/metrics", q, &out); err != nil {
		return model.EntitySnapshot{}, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		c.onUnauthorized()
		return fmt.Errorf("GET %s: unauthorized", path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}

	var env model.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("decode envelope %s: %w", path, err)
	}
	if resp.StatusCode >= 400 || env.StatusCode >= 400 {
		return fmt.Errorf("GET %s: backend status %d: %s", path, env.StatusCode, env.Message)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data %s: %w", path, err)
	}
	return nil
}
