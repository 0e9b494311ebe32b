/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package backend holds save endpoints that persist page resources outside
// the local page directory: a thin HTTP API and a Postgres table.
package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	applog "pagegrid/internal/log"
	"pagegrid/internal/save"
)

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// ErrNoPage is returned when a client has no page id to address.
var ErrNoPage = errors.New("backend: page id is required")

// Client is a minimal HTTP client for the page API. Each resource is
// written with POST {base}/api/pages/{page}/{resource}.
type Client struct {
	BaseURL string
	Token   string // bearer token
	PageID  string
	client  *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

// WithInsecureTLS disables certificate verification. Only for local test servers.
func WithInsecureTLS() ClientOption {
	return func(c *Client) {
		c.client.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}} //nolint:gosec
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// NewClient creates a new backend client. baseURL may include a trailing slash; it will be normalized.
func NewClient(baseURL, token, pageID string, opts ...ClientOption) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		PageID:  pageID,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ save.Endpoint = (*Client)(nil)

// saveResponse is the body the page API answers with.
type saveResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Save posts payload as the new content of resource r. Transport failures
// are returned as errors; a server that answers but refuses the write
// yields Success false with its message.
func (c *Client) Save(ctx context.Context, r save.Resource, payload []byte) (save.Result, error) {
	if c.PageID == "" {
		return save.Result{}, ErrNoPage
	}
	p := "/api/pages/" + url.PathEscape(c.PageID) + "/" + url.PathEscape(string(r))
	var out saveResponse
	status, err := c.doJSON(ctx, http.MethodPost, p, contentType(r), payload, &out)
	if err != nil {
		return save.Result{}, err
	}
	l := applog.WithComponent("backend").With(slog.String("resource", string(r)), slog.Int("status", status))
	if status < 200 || status >= 300 {
		msg := out.Message
		if msg == "" {
			msg = fmt.Sprintf("server answered %d %s", status, http.StatusText(status))
		}
		l.Warn("remote save refused", slog.String("message", msg))
		return save.Result{Success: false, Message: msg}, nil
	}
	l.Debug("remote save done", slog.Bool("success", out.Success))
	return save.Result{Success: out.Success, Message: out.Message}, nil
}

// Ping checks that the API answers on /healthz.
func (c *Client) Ping(ctx context.Context) error {
	u := c.BaseURL + "/healthz"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server GET /healthz: %s", resp.Status)
	}
	return nil
}

// doJSON sends body and decodes a JSON answer into dest. A non-2xx status
// is not an error; the caller decides. An undecodable error body is ignored.
func (c *Client) doJSON(ctx context.Context, method, path, ctype string, body []byte, dest any) (int, error) {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp.StatusCode, fmt.Errorf("server %s %s: decode response: %w", method, u.Path, err)
		}
	}
	return resp.StatusCode, nil
}

func contentType(r save.Resource) string {
	if r == save.Stylesheet {
		return "text/css; charset=utf-8"
	}
	return "application/json; charset=utf-8"
}
