// Package transport is the intercepted HTTP pipeline every Ledgerline call
// goes through. Before dispatch it proactively renews an expired access
// token and attaches the bearer credential; after dispatch it unwraps the
// response envelope and, on a 401, renews and retries the call exactly once.
// Callers never attach credentials themselves.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ledgerline/ledgerline-go/credentials"
	"github.com/ledgerline/ledgerline-go/token"
)

const defaultTimeout = 30 * time.Second

// TokenRefresher renews the access credential; implemented by
// refresh.Coordinator.
type TokenRefresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Client issues API calls through the interceptor pipeline.
type Client struct {
	baseURL   string
	http      *http.Client
	store     credentials.Store
	refresher TokenRefresher
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout of the underlying HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = timeout
	}
}

// NewClient creates a Client for the given API origin.
func NewClient(baseURL string, store credentials.Store, refresher TokenRefresher, options ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[NewClient] baseURL is required")
	}
	if store == nil {
		return nil, errors.New("[NewClient] store is required")
	}
	if refresher == nil {
		return nil, errors.New("[NewClient] refresher is required")
	}

	client := &Client{
		baseURL:   baseURL,
		http:      &http.Client{Timeout: defaultTimeout},
		store:     store,
		refresher: refresher,
	}

	for _, opt := range options {
		opt(client)
	}

	return client, nil
}

// call is the per-dispatch wrapper around one logical API call. It is copied,
// never mutated, so the attempt count cannot be shared between a call and its
// retry.
type call struct {
	id      string
	method  string
	path    string
	body    []byte
	attempt int
}

// retried returns a copy of the call with the attempt count advanced.
func (cl call) retried() call {
	cl.attempt++
	return cl
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do issues one logical API call. body, when non-nil, is JSON-encoded; out,
// when non-nil, receives the unwrapped response payload.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "[Client.Do] encoding request body")
		}
	}

	cl := call{
		id:     uuid.New().String(),
		method: method,
		path:   path,
		body:   payload,
	}

	bearer, err := c.prepare(ctx)
	if err != nil {
		return err
	}

	return c.send(ctx, cl, bearer, out)
}

// prepare is the request interceptor: it loads the access token and, when the
// token is present but expired, awaits a (single-flight) renewal before the
// request is dispatched. With no stored token the request proceeds
// unauthenticated, for public endpoints.
func (c *Client) prepare(ctx context.Context) (string, error) {
	pair, err := c.store.LoadPair()
	if err != nil {
		return "", errors.Wrap(err, "[Client.prepare] loading credentials")
	}
	if pair == nil || pair.AccessToken == "" {
		return "", nil
	}
	if !token.IsExpired(pair.AccessToken) {
		return pair.AccessToken, nil
	}

	renewed, err := c.refresher.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return renewed, nil
}

// send dispatches the call and runs the response interceptor: a 401 on a
// first attempt triggers one renewal and one retry of the same call; any
// further failure, and every other error class, passes through.
func (c *Client) send(ctx context.Context, cl call, bearer string, out any) error {
	var reqBody io.Reader
	if cl.body != nil {
		reqBody = bytes.NewReader(cl.body)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, reqBody)
	if err != nil {
		return errors.Wrap(err, "[Client.send] building request")
	}
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "[Client.send] %s %s", cl.method, cl.path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "[Client.send] reading response body")
	}

	// A 401 on a call that carried no credential is a genuine failure, not an
	// expired-token symptom; renewal applies only to authenticated calls.
	if resp.StatusCode == http.StatusUnauthorized && cl.attempt == 0 && bearer != "" {
		log.Debug().Str("callID", cl.id).Str("path", cl.path).Msg("unauthorized, renewing and retrying once")
		renewed, err := c.refresher.Refresh(ctx)
		if err != nil {
			return err
		}
		return c.send(ctx, cl.retried(), renewed, out)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    messageFrom(body, resp.Status),
			CallID:     cl.id,
		}
	}

	return unwrap(body, out)
}
