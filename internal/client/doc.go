// Package client is the mindful session client. It talks to the mindful API
// (login, registration, a protected resource) and keeps the resulting
// identity in a session.Manager, attaching it as a bearer token to every
// request.
//
// The client never navigates anywhere itself. When a session ends, either by
// Logout or because the API answered 401 to FetchPrivate, it publishes an
// Event; the UI layer subscribes and decides what to show. NavigateOnSessionEnd
// adapts a Navigator to that contract.
package client
