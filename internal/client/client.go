package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mindfulsc/mindful/internal/config"
	"github.com/mindfulsc/mindful/internal/logging"
	"github.com/mindfulsc/mindful/internal/session"
)

// API endpoints, relative to the base URL.
const (
	endpointLogin        = "login"
	endpointRegistration = "registration"
	endpointPrivate      = "private"
)

// ErrSessionExpired is returned by FetchPrivate when the API rejected the
// stored token. The session has been cleared by the time it is returned.
var ErrSessionExpired = errors.New("session expired")

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(e.Body, &payload) == nil {
		if payload.Error != "" {
			return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, payload.Error)
		}
		if payload.Message != "" {
			return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, payload.Message)
		}
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}

// Response is a completed API response with its body read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Options configures a Client.
type Options struct {
	// BaseURL is the API root; endpoint names are resolved against it.
	// Defaults to config.DefaultBackendURL.
	BaseURL string

	// HTTPClient defaults to a client without timeout. Callers bound
	// requests through the context.
	HTTPClient *http.Client

	// ForwardCredentials keeps cookies set by the API and sends them back.
	ForwardCredentials bool

	Logger *logging.Logger
}

// Client is the mindful session client. It is safe for concurrent use.
type Client struct {
	base     *url.URL
	http     *http.Client
	sessions *session.Manager
	logger   *logging.Logger
	now      func() time.Time

	subMu     sync.Mutex
	subs      []subscriber
	nextSubID int
}

// New creates a Client that keeps its identity in sessions.
func New(sessions *session.Manager, opts Options) (*Client, error) {
	if sessions == nil {
		return nil, errors.New("session manager is required")
	}

	raw := opts.BaseURL
	if raw == "" {
		raw = config.DefaultBackendURL
	}
	base, err := parseBaseURL(raw)
	if err != nil {
		return nil, err
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.ForwardCredentials && httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		withJar := *httpClient
		withJar.Jar = jar
		httpClient = &withJar
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Client{
		base:     base,
		http:     httpClient,
		sessions: sessions,
		logger:   logger.With("component", "client"),
		now:      time.Now,
	}, nil
}

// NewFromConfig creates a Client from a config.ClientConfig.
func NewFromConfig(cfg *config.ClientConfig, sessions *session.Manager, logger *logging.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("client config is required")
	}
	return New(sessions, Options{
		BaseURL:            cfg.BackendURL,
		ForwardCredentials: cfg.ForwardCredentials,
		Logger:             logger,
	})
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: must be an absolute http(s) URL", raw)
	}
	// endpoint names resolve under the base path, not beside it
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// BaseURL returns the API root endpoint names are resolved against.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Session returns the stored session.
func (c *Client) Session(ctx context.Context) (session.Session, error) {
	return c.sessions.GetSession(ctx)
}

// AuthHeader returns the Authorization header for the stored session, or an
// empty header set when there is no token.
func (c *Client) AuthHeader(ctx context.Context) (http.Header, error) {
	h := http.Header{}
	s, err := c.sessions.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if s.Token != "" {
		h.Set("Authorization", "Bearer "+s.Token)
	}
	return h, nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// Login exchanges credentials for a token and stores the resulting session.
// A response without a body leaves the stored session untouched and returns
// an empty token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, endpointLogin, credentials{Email: email, Password: password})
	if err != nil {
		return "", err
	}

	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		c.logger.Debug("login returned no data")
		return "", nil
	}

	var lr loginResponse
	if err := resp.Decode(&lr); err != nil {
		return "", err
	}
	if err := c.sessions.SetSession(ctx, session.Session{Token: lr.Token, Role: lr.Role}); err != nil {
		return "", err
	}

	c.publish(EventLoggedIn, lr.Role)
	return lr.Token, nil
}

// Register creates an account. The stored session is not changed.
func (c *Client) Register(ctx context.Context, email, password string) (*Response, error) {
	return c.do(ctx, http.MethodPost, endpointRegistration, credentials{Email: email, Password: password})
}

// FetchPrivate requests the protected resource. A 401 clears the stored
// session, publishes EventSessionExpired and returns ErrSessionExpired.
func (c *Client) FetchPrivate(ctx context.Context) (*Response, error) {
	resp, err := c.do(ctx, http.MethodGet, endpointPrivate, nil)
	if err == nil {
		return resp, nil
	}

	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		return nil, err
	}

	if err := c.sessions.ClearSession(ctx); err != nil {
		return nil, err
	}
	c.logger.Info("session expired")
	c.publish(EventSessionExpired, "")
	return nil, ErrSessionExpired
}

// Logout clears the stored session and publishes EventLoggedOut. It makes no
// request and may be called any number of times.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.sessions.ClearSession(ctx); err != nil {
		return err
	}
	c.publish(EventLoggedOut, "")
	return nil
}

// do sends a request to endpoint with the default headers and the current
// auth header. Non-2xx responses are returned as *StatusError.
func (c *Client) do(ctx context.Context, method, endpoint string, payload any) (*Response, error) {
	target := c.base.ResolveReference(&url.URL{Path: endpoint})

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json")

	auth, err := c.AuthHeader(ctx)
	if err != nil {
		return nil, err
	}
	for k, v := range auth {
		req.Header[k] = v
	}

	start := c.now()
	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	c.logger.Debug("api request",
		"method", method,
		"url", target.String(),
		"status", httpResp.StatusCode,
		"duration", c.now().Sub(start).Round(time.Microsecond),
	)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: httpResp.StatusCode, Body: data}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}
