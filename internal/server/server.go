package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mindfulsc/mindful/internal/auth"
	"github.com/mindfulsc/mindful/internal/config"
	"github.com/mindfulsc/mindful/internal/logging"
	"github.com/mindfulsc/mindful/internal/users"
)

// Greeting is the body served on the root path.
const Greeting = "Hello World!"

// Server is the mindful HTTP gateway.
type Server struct {
	port         int
	maxBodyBytes int64
	logger       *logging.Logger

	// auth API; nil tokens leaves /api unmounted
	tokens   *auth.TokenIssuer
	users    users.Directory
	hasher   auth.Hasher
	admins   map[string]bool
	throttle *loginThrottle
	proxies  []netip.Prefix

	// absentHash is verified against when the login email is unknown, so
	// both rejections cost one argon2id run.
	absentHash string
	verify     func(password, encodedHash string) (bool, error)

	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
	started  bool
}

// Config holds server configuration options.
type Config struct {
	Port         int
	MaxBodyBytes int64
	Logger       *logging.Logger

	// Tokens enables the /api routes. Users defaults to an in-memory
	// directory and Hasher to auth.DefaultHasher.
	Tokens      *auth.TokenIssuer
	Users       users.Directory
	Hasher      *auth.Hasher
	AdminEmails []string
	RateLimit   RateLimitConfig

	// TrustedProxies are the peers (IPs or CIDR prefixes) whose forwarding
	// headers name the client for login throttling.
	TrustedProxies []string
}

// NewServer creates a new Server instance.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}

	s := &Server{
		port:         cfg.Port,
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       cfg.Logger,
		tokens:       cfg.Tokens,
		users:        cfg.Users,
		hasher:       auth.DefaultHasher(),
		admins:       make(map[string]bool),
		throttle:     newLoginThrottle(cfg.RateLimit),
		verify:       auth.VerifyPassword,
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = config.DefaultMaxBodyBytes
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	s.logger = s.logger.With("component", "gateway")
	if cfg.Hasher != nil {
		s.hasher = *cfg.Hasher
	}
	if s.tokens != nil && s.users == nil {
		s.users = users.NewMemoryDirectory()
	}
	for _, email := range cfg.AdminEmails {
		s.admins[users.NormalizeEmail(email)] = true
	}

	proxies, err := config.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	s.proxies = proxies

	if s.tokens != nil {
		s.absentHash, err = s.hasher.Hash(uuid.NewString())
		if err != nil {
			return nil, fmt.Errorf("failed to prepare password check: %w", err)
		}
	}

	return s, nil
}

// NewServerFromConfig creates a Server from a config.GatewayConfig. The auth
// API is enabled when a JWT secret is configured; dir may be nil.
func NewServerFromConfig(cfg *config.GatewayConfig, dir users.Directory, logger *logging.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("gateway config is required")
	}

	var tokens *auth.TokenIssuer
	if cfg.JWTSecret != "" {
		var err error
		tokens, err = auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to configure tokens: %w", err)
		}
	}

	return NewServer(&Config{
		Port:         cfg.Port,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       logger,
		Tokens:       tokens,
		Users:        dir,
		AdminEmails:    cfg.AdminEmails,
		TrustedProxies: cfg.TrustedProxies,
	})
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// AuthEnabled reports whether the /api routes are served.
func (s *Server) AuthEnabled() bool {
	return s.tokens != nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)
	return s.withRequestLog(withCORS(s.withJSONBody(mux)))
}

// Start starts the HTTP server.
// The server runs until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}

	addr := fmt.Sprintf(":%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.started = true
	s.mu.Unlock()

	go s.sweepThrottle(ctx)
	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	s.logger.Info(fmt.Sprintf("server is running on http://localhost:%d", port), "auth_api", s.AuthEnabled())

	err = s.server.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.started = false
	s.listener = nil
	return nil
}

// ListenAddr returns the actual address the server is listening on.
// Useful when port 0 is used to get an available port.
// Returns empty string if not started or stopped.
func (s *Server) ListenAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) sweepThrottle(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.throttle.sweep()
		}
	}
}

func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)

	if s.AuthEnabled() {
		mux.HandleFunc("POST /api/registration", s.handleRegistration)
		mux.HandleFunc("POST /api/login", s.handleLogin)
		mux.HandleFunc("GET /api/private", s.withAuth(s.handlePrivate))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// handleRoot serves the greeting. Headers and body are ignored.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": Greeting})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
