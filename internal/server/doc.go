// Package server provides the mindful HTTP gateway.
//
// # Endpoints
//
//   - GET / - static greeting {"message":"Hello World!"}
//   - POST /api/registration - create an account from {email, password}
//   - POST /api/login - exchange {email, password} for {token, role}
//   - GET /api/private - protected resource, requires a bearer token
//
// The /api routes are only mounted when a token secret is configured;
// without one the gateway serves the greeting alone.
//
// # Cross-cutting behavior
//
// Every response allows any origin (CORS "*"), and preflight requests are
// answered directly. JSON request bodies on POST, PUT, PATCH and DELETE are
// validated before routing: malformed bodies get 400 and oversized ones 413.
// Each request is tagged with an X-Request-Id.
//
// # Authentication
//
// Passwords are stored as argon2id hashes. Login issues an HS256 JWT whose
// jti is the account email and whose role claim carries the account role.
// Login attempts are throttled per client IP. Forwarding headers name the
// client only when the peer is a configured trusted proxy. An unknown email
// is checked against a placeholder hash so it costs the same as a wrong
// password.
package server
