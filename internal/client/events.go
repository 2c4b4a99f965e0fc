package client

import (
	"time"
)

// EventKind identifies a session transition.
type EventKind int

const (
	// EventLoggedIn follows a login that stored a new session.
	EventLoggedIn EventKind = iota + 1
	// EventLoggedOut follows an explicit Logout.
	EventLoggedOut
	// EventSessionExpired follows a 401 from the protected resource.
	EventSessionExpired
)

func (k EventKind) String() string {
	switch k {
	case EventLoggedIn:
		return "logged_in"
	case EventLoggedOut:
		return "logged_out"
	case EventSessionExpired:
		return "session_expired"
	default:
		return "unknown"
	}
}

// Event is published to subscribers after the session change it describes
// has been written.
type Event struct {
	Kind EventKind
	Role string // role of the new session, for EventLoggedIn
	At   time.Time
}

// EndsSession reports whether the event leaves the client unauthenticated.
func (e Event) EndsSession() bool {
	return e.Kind == EventLoggedOut || e.Kind == EventSessionExpired
}

// Subscribe registers fn for every future event and returns a function that
// removes it. Events are delivered synchronously, in the goroutine of the
// operation that caused them, in subscription order.
func (c *Client) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	c.subs = append(c.subs, subscriber{id: id, fn: fn})

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

type subscriber struct {
	id int
	fn func(Event)
}

func (c *Client) publish(kind EventKind, role string) {
	ev := Event{Kind: kind, Role: role, At: c.now()}

	c.subMu.Lock()
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	c.subMu.Unlock()

	c.logger.Debug("session event", "kind", kind.String())
	for _, s := range subs {
		s.fn(ev)
	}
}

// Navigator moves the user interface to its login screen.
type Navigator interface {
	ToLogin()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func()

// ToLogin calls f.
func (f NavigatorFunc) ToLogin() { f() }

// NavigateOnSessionEnd calls nav.ToLogin once for every event that ends the
// session. It returns the unsubscribe function.
func (c *Client) NavigateOnSessionEnd(nav Navigator) (unsubscribe func()) {
	return c.Subscribe(func(ev Event) {
		if ev.EndsSession() {
			nav.ToLogin()
		}
	})
}
