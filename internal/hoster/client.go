package hoster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wharf/internal/config"
	"wharf/internal/services"
)

const userAgent = "wharf/0.1.0"

// File describes one remote file as reported by the host's search and
// info endpoints. Reference is the stable identifier that never expires.
type File struct {
	Reference  string `json:"reference"`
	Filename   string `json:"filename"`
	SizeBytes  int64  `json:"size_bytes"`
	Category   string `json:"category"`
	UploadedAt string `json:"uploaded_at"`
}

// Link is a freshly issued direct download URL. Direct URLs expire after
// a short window; ExpiresAt is a hint, not a guarantee.
type Link struct {
	DirectURL string    `json:"direct_url"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"size_bytes"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Account reports the host session state.
type Account struct {
	Valid     bool      `json:"valid"`
	Premium   bool      `json:"premium"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Searcher is the remote lookup capability used by the search
// orchestrator. The host matches substrings only; relevance is the
// caller's problem.
type Searcher interface {
	Search(ctx context.Context, query, category string) ([]File, error)
}

// Resolver exchanges stable references for direct links and reports
// session health.
type Resolver interface {
	Resolve(ctx context.Context, reference string) (*Link, error)
	Valid(ctx context.Context) bool
}

// Client is the HTTP implementation of Searcher and Resolver against the
// file host's JSON API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var (
	_ Searcher = (*Client)(nil)
	_ Resolver = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a host API client.
func New(baseURL, token string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, services.StageResolve, "hoster", "base url required", nil)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, services.Wrap(services.ErrConfiguration, services.StageResolve, "hoster", "api token required", nil)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// NewFromConfig creates a host API client from daemon configuration.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	return New(cfg.Hoster.BaseURL, cfg.Hoster.APIToken, cfg.HosterTimeout(), opts...)
}

// Search queries the host for files whose names contain the query string.
// The category filter is optional.
func (c *Client) Search(ctx context.Context, query, category string) ([]File, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	endpoint, err := url.Parse(c.baseURL + "/api/files/search")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, services.StageResolve, "hoster search", "parse url", err)
	}
	params := url.Values{}
	params.Set("q", query)
	if category != "" {
		params.Set("category", category)
	}
	endpoint.RawQuery = params.Encode()

	var payload struct {
		Files []File `json:"files"`
	}
	if err := c.getJSON(ctx, endpoint.String(), "hoster search", &payload); err != nil {
		return nil, err
	}
	return payload.Files, nil
}

// Info fetches the host's record for a single stable reference.
func (c *Client) Info(ctx context.Context, reference string) (*File, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, services.Wrap(services.ErrValidation, services.StageResolve, "hoster info", "reference required", nil)
	}
	var payload File
	endpoint := c.baseURL + "/api/files/" + url.PathEscape(reference)
	if err := c.getJSON(ctx, endpoint, "hoster info", &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Resolve asks the host to issue a direct download link for a stable
// reference. Direct links are short-lived; callers re-resolve rather
// than store them long term.
func (c *Client) Resolve(ctx context.Context, reference string) (*Link, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, services.Wrap(services.ErrValidation, services.StageResolve, "hoster resolve", "reference required", nil)
	}
	body, err := json.Marshal(map[string]string{"reference": reference})
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, services.StageResolve, "hoster resolve", "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/links", bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, services.StageResolve, "hoster resolve", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var payload Link
	if err := c.doJSON(req, "hoster resolve", &payload); err != nil {
		return nil, err
	}
	if strings.TrimSpace(payload.DirectURL) == "" {
		return nil, services.Wrap(services.ErrTransient, services.StageResolve, "hoster resolve", "empty direct url in response", nil)
	}
	return &payload, nil
}

// Account fetches the current session state.
func (c *Client) Account(ctx context.Context) (*Account, error) {
	var payload Account
	if err := c.getJSON(ctx, c.baseURL+"/api/account", "hoster account", &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Valid reports whether the configured session token is usable.
func (c *Client) Valid(ctx context.Context) bool {
	account, err := c.Account(ctx)
	return err == nil && account.Valid
}

func (c *Client) getJSON(ctx context.Context, endpoint, op string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return services.Wrap(services.ErrTransient, services.StageResolve, op, "build request", err)
	}
	return c.doJSON(req, op, out)
}

func (c *Client) doJSON(req *http.Request, op string, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		marker := services.ErrTransient
		if errors.Is(err, context.DeadlineExceeded) {
			marker = services.ErrTimeout
		}
		return services.Wrap(marker, services.StageResolve, op, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return classifyStatus(resp.StatusCode, op, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrTransient, services.StageResolve, op, "decode response", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// classifyStatus maps host HTTP failures onto the shared error taxonomy.
// Session problems are permanent until the operator fixes credentials;
// quota responses must not burn retries; everything else is worth
// retrying.
func classifyStatus(status int, op, body string) error {
	msg := fmt.Sprintf("host returned %d", status)
	if body != "" {
		msg = fmt.Sprintf("host returned %d: %s", status, body)
	}
	var marker error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		marker = services.ErrUnauthorized
	case status == http.StatusNotFound:
		marker = services.ErrNotFound
	case status == http.StatusGone:
		marker = services.ErrLinkExpired
	case status == http.StatusPaymentRequired || status == http.StatusTooManyRequests:
		marker = services.ErrQuota
	case status == http.StatusRequestTimeout:
		marker = services.ErrTimeout
	default:
		marker = services.ErrTransient
	}
	return services.Wrap(marker, services.StageResolve, op, msg, nil)
}
