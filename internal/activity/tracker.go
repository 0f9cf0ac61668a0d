package activity

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout is the idle period after which a session is logged out.
const DefaultTimeout = time.Hour

// Tracker compares and records session activity. It is owned by the caller and
// passed to guards explicitly.
type Tracker struct {
	store    Store
	timeout  time.Duration
	now      func() time.Time
	onExpire func(ctx context.Context)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithExpireHook sets the logout callback invoked when a stale session is mounted.
func WithExpireHook(fn func(ctx context.Context)) Option {
	return func(t *Tracker) { t.onExpire = fn }
}

// WithIdleTimeout sets the idle timeout at construction.
func WithIdleTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// NewTracker constructs a Tracker over store.
func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{store: store, timeout: DefaultTimeout, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithTimeout returns a copy of t using d as its timeout. Non-positive d keeps the current value.
func (t *Tracker) WithTimeout(d time.Duration) *Tracker {
	clone := *t
	if d > 0 {
		clone.timeout = d
	}
	return &clone
}

// Timeout returns the configured idle timeout.
func (t *Tracker) Timeout() time.Duration {
	return t.timeout
}

// Expired reports whether the last recorded activity is older than the timeout.
// A session with no recorded activity is not expired.
func (t *Tracker) Expired() bool {
	last, ok := t.store.LastActivity()
	if !ok {
		return false
	}
	return t.now().Sub(last) > t.timeout
}

// Touch records activity now.
func (t *Tracker) Touch() {
	t.store.Touch(t.now())
}

// Mounted is the handle returned by Mount.
type Mounted struct {
	// Expired is true when the session was idle past the timeout and was logged out.
	Expired bool
	cancels []func()
	once    sync.Once
}

// Unmount removes every listener registered by Mount. It is safe to call more than once.
func (m *Mounted) Unmount() {
	if m == nil {
		return
	}
	m.once.Do(func() {
		for _, cancel := range m.cancels {
			cancel()
		}
		m.cancels = nil
	})
}

// expire logs the session out and forgets its activity, so the next sign-in
// starts a fresh idle window.
func (t *Tracker) expire(ctx context.Context) {
	if t.onExpire != nil {
		t.onExpire(ctx)
	}
	t.store.Clear()
}

// Mount runs when a protected view is entered. A stale session is logged out
// and nothing is recorded or subscribed. Otherwise activity is recorded now and
// interaction events on src, which may be nil, keep refreshing it until Unmount.
func (t *Tracker) Mount(ctx context.Context, src EventSource) *Mounted {
	m := &Mounted{}
	if t.Expired() {
		m.Expired = true
		t.expire(ctx)
		return m
	}
	t.Touch()
	if src == nil {
		return m
	}
	for _, kind := range TrackedEvents() {
		m.cancels = append(m.cancels, src.Subscribe(kind, t.Touch))
	}
	return m
}
