// Package authclient is a Go client for the session endpoints. It keeps the
// refresh cookie in a jar and refreshes the access token when asked to; the
// server never refreshes on its own.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"
)

var ErrUnauthorized = errors.New("unauthorized")

type Client struct {
	baseURL    string
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
}

func NewClient(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
			Jar:     jar,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

type tokenResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
}

// StatusError carries the server's message for non-2xx answers.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *Client) setAccessToken(t string) {
	c.mu.Lock()
	c.accessToken = t
	c.mu.Unlock()
}

func (c *Client) Login(ctx context.Context, email, password string) error {
	var out tokenResponse
	if err := c.post(ctx, "/api/login", map[string]string{"email": email, "password": password}, &out); err != nil {
		return err
	}
	c.setAccessToken(out.AccessToken)
	return nil
}

// Refresh rotates the refresh cookie and stores the new access token.
func (c *Client) Refresh(ctx context.Context) error {
	var out tokenResponse
	if err := c.post(ctx, "/api/refresh", nil, &out); err != nil {
		return err
	}
	c.setAccessToken(out.AccessToken)
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.post(ctx, "/api/logout", nil, nil); err != nil {
		return err
	}
	c.setAccessToken("")
	return nil
}

// Get calls path with the access token. On 401 it refreshes once and retries.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	err := c.do(ctx, http.MethodGet, path, nil, out, true)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}
	if rerr := c.Refresh(ctx); rerr != nil {
		return err
	}
	return c.do(ctx, http.MethodGet, path, nil, out, true)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out, false)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, bearer bool) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer {
		if tok := c.AccessToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&msg)
		return &StatusError{Code: resp.StatusCode, Message: msg.Message}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
