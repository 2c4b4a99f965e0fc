package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mindfulsc/mindful/internal/auth"
	"github.com/mindfulsc/mindful/internal/config"
	"github.com/mindfulsc/mindful/internal/logging"
	"github.com/mindfulsc/mindful/internal/testutil"
	"github.com/mindfulsc/mindful/internal/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer creates a gateway with the auth API enabled, cheap password
// hashing and a silenced logger.
func newTestServer(t *testing.T, mods ...func(*Config)) *Server {
	t.Helper()

	tokens, err := auth.NewTokenIssuer(testutil.TestSecret, time.Hour)
	require.NoError(t, err)

	logger := logging.New()
	logger.SetWriter(io.Discard)

	cfg := &Config{
		Logger:      logger,
		Tokens:      tokens,
		Hasher:      testutil.CheapHasher(),
		AdminEmails: []string{"Admin@Example.com"},
	}
	for _, mod := range mods {
		mod(cfg)
	}

	s, err := NewServer(cfg)
	require.NoError(t, err)
	return s
}

// trustTestPeer trusts the peer address httptest.NewRequest assigns, so
// X-Forwarded-For selects the throttled client.
func trustTestPeer(c *Config) {
	c.TrustedProxies = []string{"192.0.2.0/24"}
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *http.Response {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Result()
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func credentialsBody(t *testing.T, email, password string) string {
	t.Helper()
	return string(testutil.MustMarshalJSON(t, credentials{Email: email, Password: password}))
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	testutil.MustUnmarshalJSON(t, []byte(readBody(t, resp)), v)
}

func TestNewServer(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{name: "nil config", cfg: nil, wantErr: "config is required"},
		{name: "negative port", cfg: &Config{Port: -1}, wantErr: "invalid port"},
		{name: "port too large", cfg: &Config{Port: 70000}, wantErr: "invalid port"},
		{name: "greeting only", cfg: &Config{Port: 3000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewServer(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.Port, s.Port())
			assert.False(t, s.AuthEnabled())
			assert.Equal(t, int64(config.DefaultMaxBodyBytes), s.maxBodyBytes)
		})
	}
}

func TestNewServerFromConfig(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewServerFromConfig(nil, nil, nil)
		assert.Error(t, err)
	})

	t.Run("without secret", func(t *testing.T) {
		cfg := config.DefaultGatewayConfig()
		s, err := NewServerFromConfig(&cfg, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, config.DefaultPort, s.Port())
		assert.False(t, s.AuthEnabled())
	})

	t.Run("with secret", func(t *testing.T) {
		cfg := config.DefaultGatewayConfig()
		cfg.JWTSecret = testutil.TestSecret
		cfg.TrustedProxies = []string{"10.0.0.0/8"}
		s, err := NewServerFromConfig(&cfg, users.NewMemoryDirectory(), nil)
		require.NoError(t, err)
		assert.True(t, s.AuthEnabled())
		require.Len(t, s.proxies, 1)
		assert.Equal(t, "10.0.0.0/8", s.proxies[0].String())
	})

	t.Run("bad secret", func(t *testing.T) {
		cfg := config.DefaultGatewayConfig()
		cfg.JWTSecret = "c2hvcnQ="
		_, err := NewServerFromConfig(&cfg, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to configure tokens")
	})
}

func TestHandleRoot(t *testing.T) {
	s, err := NewServer(&Config{})
	require.NoError(t, err)
	h := s.Handler()

	tests := []struct {
		name    string
		body    string
		headers map[string]string
	}{
		{name: "plain"},
		{name: "with auth header", headers: map[string]string{"Authorization": "Bearer whatever"}},
		{name: "with json body", body: `{"ignored":true}`},
		{name: "with malformed body", body: `{not json`},
		{name: "with odd headers", headers: map[string]string{"Accept": "text/html", "X-Custom": "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, h, http.MethodGet, "/", tt.body, tt.headers)

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
			assert.Equal(t, `{"message":"Hello World!"}`, readBody(t, resp))
		})
	}
}

func TestHandleRoot_Idempotent(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	first := readBody(t, do(t, h, http.MethodGet, "/", "", nil))
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, readBody(t, do(t, h, http.MethodGet, "/", "", nil)))
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	t.Run("simple request", func(t *testing.T) {
		resp := do(t, h, http.MethodGet, "/", "", map[string]string{"Origin": "http://localhost:8081"})
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("error responses too", func(t *testing.T) {
		resp := do(t, h, http.MethodGet, "/missing", "", map[string]string{"Origin": "http://app.test"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		resp := do(t, h, http.MethodOptions, "/api/login", "", map[string]string{
			"Origin":                         "http://app.test",
			"Access-Control-Request-Method":  "POST",
			"Access-Control-Request-Headers": "authorization,content-type",
		})
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, corsAllowMethods, resp.Header.Get("Access-Control-Allow-Methods"))
		assert.Equal(t, "authorization,content-type", resp.Header.Get("Access-Control-Allow-Headers"))
		assert.Empty(t, readBody(t, resp))
	})

	t.Run("bare options is routed", func(t *testing.T) {
		resp := do(t, h, http.MethodOptions, "/", "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestJSONBody(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.MaxBodyBytes = 64 })
	h := s.Handler()

	t.Run("malformed", func(t *testing.T) {
		resp := do(t, h, http.MethodPost, "/api/login", `{"email":`, nil)
		testutil.AssertErrorResponse(t, resp, http.StatusBadRequest, "invalid JSON body")
	})

	t.Run("malformed on unknown route", func(t *testing.T) {
		resp := do(t, h, http.MethodPut, "/anything", `[1,2`, nil)
		testutil.AssertErrorResponse(t, resp, http.StatusBadRequest, "invalid JSON body")
	})

	t.Run("too large", func(t *testing.T) {
		body := fmt.Sprintf(`{"email":"a@b.c","password":%q}`, strings.Repeat("x", 100))
		resp := do(t, h, http.MethodPost, "/api/registration", body, nil)
		testutil.AssertErrorResponse(t, resp, http.StatusRequestEntityTooLarge, "request body too large")
	})

	t.Run("other content types pass through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader("email=a"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		testutil.AssertErrorResponse(t, rec.Result(), http.StatusBadRequest, "invalid request body")
	})

	t.Run("vendor json", func(t *testing.T) {
		assert.True(t, isJSON("application/json; charset=utf-8"))
		assert.True(t, isJSON("application/problem+json"))
		assert.False(t, isJSON("text/plain"))
		assert.False(t, isJSON(""))
	})
}

func TestNotFound(t *testing.T) {
	s, err := NewServer(&Config{})
	require.NoError(t, err)
	h := s.Handler()

	// the auth API is not mounted without a token issuer
	for _, path := range []string{"/nope", "/api/login", "/api/private"} {
		resp := do(t, h, http.MethodGet, path, "", nil)
		testutil.AssertErrorResponse(t, resp, http.StatusNotFound, "not found")
	}

	resp := do(t, h, http.MethodPost, "/", `{}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	resp := do(t, h, http.MethodGet, "/", "", nil)
	_, err := uuid.Parse(resp.Header.Get(headerRequestID))
	assert.NoError(t, err)

	id := uuid.NewString()
	resp = do(t, h, http.MethodGet, "/", "", map[string]string{headerRequestID: id})
	assert.Equal(t, id, resp.Header.Get(headerRequestID))

	resp = do(t, h, http.MethodGet, "/", "", map[string]string{headerRequestID: "not-a-uuid"})
	assert.NotEqual(t, "not-a-uuid", resp.Header.Get(headerRequestID))
}

func TestRequestLog(t *testing.T) {
	var buf testutil.SyncBuffer
	logger := logging.New()
	logger.SetWriter(&buf)
	logger.SetLevel(logging.LevelDebug)

	s, err := NewServer(&Config{Logger: logger})
	require.NoError(t, err)

	do(t, s.Handler(), http.MethodGet, "/missing", "", nil)

	out := buf.String()
	assert.Contains(t, out, "DEBUG: request")
	assert.Contains(t, out, "component=gateway")
	assert.Contains(t, out, "method=GET")
	assert.Contains(t, out, "path=/missing")
	assert.Contains(t, out, "status=404")
}

func TestRegistration(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	resp := do(t, h, http.MethodPost, "/api/registration", credentialsBody(t, " User@Example.com ", "pw"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created registrationResponse
	decodeBody(t, resp, &created)
	assert.Equal(t, "user@example.com", created.Email)
	assert.Equal(t, auth.DefaultRole, created.Role)
	_, err := uuid.Parse(created.ID)
	assert.NoError(t, err)

	stored, err := s.users.Get(context.Background(), "user@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "pw", stored.PasswordHash)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))

	t.Run("duplicate", func(t *testing.T) {
		resp := do(t, h, http.MethodPost, "/api/registration", credentialsBody(t, "user@example.com", "other"), nil)
		testutil.AssertErrorResponse(t, resp, http.StatusConflict, "email already registered")
	})

	t.Run("admin", func(t *testing.T) {
		resp := do(t, h, http.MethodPost, "/api/registration", credentialsBody(t, "admin@example.com", "pw"), nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var created registrationResponse
		decodeBody(t, resp, &created)
		assert.Equal(t, RoleAdmin, created.Role)
	})

	t.Run("invalid input", func(t *testing.T) {
		tests := []struct {
			body string
			msg  string
		}{
			{`{}`, "email and password are required"},
			{`{"email":"a@b.c"}`, "email and password are required"},
			{`{"password":"pw"}`, "email and password are required"},
			{`"just a string"`, "invalid request body"},
			{credentialsBody(t, "no-at-sign", "pw"), "invalid email"},
		}
		for _, tt := range tests {
			resp := do(t, h, http.MethodPost, "/api/registration", tt.body, nil)
			testutil.AssertErrorResponse(t, resp, http.StatusBadRequest, tt.msg)
		}
	})
}

func register(t *testing.T, h http.Handler, email, password string) {
	t.Helper()
	resp := do(t, h, http.MethodPost, "/api/registration", credentialsBody(t, email, password), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, readBody(t, resp))
}

func TestLoginAndPrivate(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	register(t, h, testutil.TestEmail, testutil.TestPassword)

	resp := do(t, h, http.MethodPost, "/api/login", credentialsBody(t, testutil.TestEmail, testutil.TestPassword), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login LoginResponse
	decodeBody(t, resp, &login)
	assert.NotEmpty(t, login.Token)
	assert.Equal(t, auth.DefaultRole, login.Role)

	resp = do(t, h, http.MethodGet, "/api/private", "", map[string]string{"Authorization": "Bearer " + login.Token})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var private privateResponse
	decodeBody(t, resp, &private)
	assert.Equal(t, testutil.TestEmail, private.Email)
	assert.Equal(t, auth.DefaultRole, private.Role)
	assert.NotEmpty(t, private.Message)
}

func TestLogin_Rejected(t *testing.T) {
	s := newTestServer(t, trustTestPeer)
	h := s.Handler()
	register(t, h, testutil.TestEmail, testutil.TestPassword)

	tests := []struct {
		name string
		body string
		ip   string
	}{
		{"wrong password", credentialsBody(t, testutil.TestEmail, "nope"), "198.51.100.1"},
		{"unknown user", credentialsBody(t, "ghost@example.com", testutil.TestPassword), "198.51.100.2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, h, http.MethodPost, "/api/login", tt.body, map[string]string{"X-Forwarded-For": tt.ip})
			testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "invalid email or password")
		})
	}
}

func TestLogin_Throttled(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.RateLimit = RateLimitConfig{MaxAttempts: 2, Window: time.Minute}
	}, trustTestPeer)
	h := s.Handler()
	headers := map[string]string{"X-Forwarded-For": "203.0.113.9"}
	body := credentialsBody(t, testutil.TestEmail, "wrong")

	for i := 0; i < 2; i++ {
		resp := do(t, h, http.MethodPost, "/api/login", body, headers)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp := do(t, h, http.MethodPost, "/api/login", body, headers)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	testutil.AssertErrorResponse(t, resp, http.StatusTooManyRequests, "too many login attempts")

	// a different client is unaffected
	resp = do(t, h, http.MethodPost, "/api/login", body, map[string]string{"X-Forwarded-For": "203.0.113.10"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogin_BlockedAfterFailures(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.RateLimit = RateLimitConfig{MaxAttempts: 100, BlockAfter: 3, BlockTime: time.Minute}
	}, trustTestPeer)
	h := s.Handler()
	register(t, h, testutil.TestEmail, testutil.TestPassword)
	headers := map[string]string{"X-Forwarded-For": "203.0.113.20"}

	for i := 0; i < 3; i++ {
		resp := do(t, h, http.MethodPost, "/api/login", credentialsBody(t, testutil.TestEmail, "wrong"), headers)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	// even the right password is refused while blocked
	resp := do(t, h, http.MethodPost, "/api/login", credentialsBody(t, testutil.TestEmail, testutil.TestPassword), headers)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	testutil.AssertErrorResponse(t, resp, http.StatusTooManyRequests, "too many failed login attempts")
}

func TestLogin_ForwardedHeadersFromUntrustedPeer(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.RateLimit = RateLimitConfig{MaxAttempts: 2, Window: time.Minute}
	})
	h := s.Handler()
	body := credentialsBody(t, testutil.TestEmail, "wrong")

	// rotating the header does not escape the peer's budget
	for _, ip := range []string{"198.51.100.1", "198.51.100.2"} {
		resp := do(t, h, http.MethodPost, "/api/login", body, map[string]string{"X-Forwarded-For": ip})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp := do(t, h, http.MethodPost, "/api/login", body, map[string]string{"X-Forwarded-For": "198.51.100.3", "X-Real-IP": "198.51.100.4"})
	testutil.AssertErrorResponse(t, resp, http.StatusTooManyRequests, "too many login attempts")
}

func TestLogin_UnknownUserRunsPasswordCheck(t *testing.T) {
	s := newTestServer(t, trustTestPeer)
	h := s.Handler()
	register(t, h, testutil.TestEmail, testutil.TestPassword)

	stored, err := s.users.Get(context.Background(), testutil.TestEmail)
	require.NoError(t, err)

	var checked []string
	s.verify = func(password, encodedHash string) (bool, error) {
		checked = append(checked, encodedHash)
		return auth.VerifyPassword(password, encodedHash)
	}

	resp := do(t, h, http.MethodPost, "/api/login", credentialsBody(t, testutil.TestEmail, "wrong"),
		map[string]string{"X-Forwarded-For": "198.51.100.10"})
	testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "invalid email or password")

	resp = do(t, h, http.MethodPost, "/api/login", credentialsBody(t, "ghost@example.com", "wrong"),
		map[string]string{"X-Forwarded-For": "198.51.100.11"})
	testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "invalid email or password")

	require.Len(t, checked, 2)
	assert.Equal(t, stored.PasswordHash, checked[0])
	assert.Equal(t, s.absentHash, checked[1])

	// same argon2id parameters as a registered account
	params := func(encoded string) []string { return strings.Split(encoded, "$")[:4] }
	assert.Equal(t, params(stored.PasswordHash), params(s.absentHash))

	// a matching password never authenticates an unknown email
	s.verify = func(string, string) (bool, error) { return true, nil }
	resp = do(t, h, http.MethodPost, "/api/login", credentialsBody(t, "ghost@example.com", "anything"),
		map[string]string{"X-Forwarded-For": "198.51.100.12"})
	testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, "invalid email or password")
}

func TestNewServer_AbsentHashOnlyWithAuth(t *testing.T) {
	s, err := NewServer(&Config{Logger: silentLogger()})
	require.NoError(t, err)
	assert.Empty(t, s.absentHash)

	s = newTestServer(t)
	assert.True(t, strings.HasPrefix(s.absentHash, "$argon2id$"))

	_, err = NewServer(&Config{TrustedProxies: []string{"proxy.internal"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid trusted proxies")
}

func TestWithAuth(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	other, err := auth.NewTokenIssuer("b3RoZXItc2VjcmV0LW90aGVyLXNlY3JldC1vdGhlci1zZWNyZXQ=", time.Hour)
	require.NoError(t, err)
	foreign, err := other.Issue(testutil.TestEmail, auth.DefaultRole)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		msg    string
	}{
		{"missing", "", "authorization required"},
		{"basic scheme", "Basic dXNlcjpwYXNz", "invalid authorization format"},
		{"garbage token", "Bearer not-a-jwt", "invalid or expired token"},
		{"foreign key", "Bearer " + foreign, "invalid or expired token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			resp := do(t, h, http.MethodGet, "/api/private", "", headers)
			testutil.AssertErrorResponse(t, resp, http.StatusUnauthorized, tt.msg)
		})
	}
}

func TestServerStartStop(t *testing.T) {
	var buf testutil.SyncBuffer
	logger := logging.New()
	logger.SetWriter(&buf)

	s, err := NewServer(&Config{Port: 0, Logger: logger})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start(ctx)
	}()

	require.Eventually(t, func() bool { return s.ListenAddr() != "" }, 2*time.Second, 10*time.Millisecond)

	addr := s.ListenAddr()
	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, `{"message":"Hello World!"}`, readBody(t, resp))

	_, port, _ := strings.Cut(addr, "]:")
	if port == "" {
		_, port, _ = strings.Cut(addr, ":")
	}
	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), "server is running on http://localhost:"+port)
	}, time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop in time")
	}
}

func TestServerStop_ClearsListenAddr(t *testing.T) {
	s, err := NewServer(&Config{Port: 0, Logger: silentLogger()})
	require.NoError(t, err)
	assert.Empty(t, s.ListenAddr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start(ctx)
	}()
	require.Eventually(t, func() bool { return s.ListenAddr() != "" }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.Empty(t, s.ListenAddr())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop in time")
	}
}

func TestServerDoubleStart(t *testing.T) {
	s, err := NewServer(&Config{Logger: silentLogger()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = s.Start(ctx) }()
	require.Eventually(t, func() bool { return s.ListenAddr() != "" }, 2*time.Second, 10*time.Millisecond)

	err = s.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestServerStopNotStarted(t *testing.T) {
	s, err := NewServer(&Config{})
	require.NoError(t, err)
	assert.NoError(t, s.Stop())
	assert.Empty(t, s.ListenAddr())
}

func silentLogger() *logging.Logger {
	l := logging.New()
	l.SetWriter(io.Discard)
	return l
}
