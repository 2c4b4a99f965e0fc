package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mindfulsc/mindful/internal/auth"
	"github.com/mindfulsc/mindful/internal/users"
)

// RoleAdmin is granted to configured admin emails at registration.
const RoleAdmin = "ROLE_ADMIN"

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body of a successful POST /api/login.
type LoginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

type registrationResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type privateResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
	Role    string `json:"role"`
}

func readCredentials(r *http.Request) (credentials, error) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		return c, errors.New("invalid request body")
	}
	c.Email = users.NormalizeEmail(c.Email)
	if c.Email == "" || c.Password == "" {
		return c, errors.New("email and password are required")
	}
	return c, nil
}

func (s *Server) handleRegistration(w http.ResponseWriter, r *http.Request) {
	creds, err := readCredentials(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !strings.Contains(creds.Email, "@") {
		writeError(w, http.StatusBadRequest, "invalid email")
		return
	}

	hash, err := s.hasher.Hash(creds.Password)
	if err != nil {
		s.logger.Error("failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	role := auth.DefaultRole
	if s.admins[creds.Email] {
		role = RoleAdmin
	}

	u, err := s.users.Create(r.Context(), users.User{
		Email:        creds.Email,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		if errors.Is(err, users.ErrUserExists) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		s.logger.Error("failed to create user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info("user registered", "email", u.Email, "role", u.Role)
	writeJSON(w, http.StatusCreated, registrationResponse{ID: u.ID, Email: u.Email, Role: u.Role})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r, s.proxies)
	if v := s.throttle.check(ip); !v.allowed {
		w.Header().Set("Retry-After", retryAfterSeconds(v.retryAfter))
		msg := "too many login attempts"
		if v.blocked {
			msg = "too many failed login attempts"
		}
		s.logger.Warn("login throttled", "ip", ip, "blocked", v.blocked, "retry_after", v.retryAfter)
		writeError(w, http.StatusTooManyRequests, msg)
		return
	}

	creds, err := readCredentials(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	u, err := s.users.Get(r.Context(), creds.Email)
	if err != nil && !errors.Is(err, users.ErrUserNotFound) {
		s.logger.Error("failed to load user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	found := err == nil
	hash := s.absentHash
	if found {
		hash = u.PasswordHash
	}
	ok, err := s.verify(creds.Password, hash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", "email", creds.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found || !ok {
		if d := s.throttle.failed(ip); d > 0 {
			s.logger.Warn("login blocked", "ip", ip, "duration", d)
		}
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	s.throttle.succeeded(ip)

	token, err := s.tokens.Issue(u.Email, u.Role)
	if err != nil {
		s.logger.Error("failed to issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	role := u.Role
	if role == "" {
		role = auth.DefaultRole
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Role: role})
}

// retryAfterSeconds renders d as a Retry-After value, rounded up to whole
// seconds and never below one.
func retryAfterSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func (s *Server) handlePrivate(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	writeJSON(w, http.StatusOK, privateResponse{
		Message: "private resource",
		Email:   claims.Email(),
		Role:    claims.Role,
	})
}
