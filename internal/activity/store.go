// Package activity tracks the last user interaction of a session and forces
// logout once the session has been idle for longer than its timeout.
package activity

import (
	"strconv"
	"sync/atomic"
	"time"
)

// StorageKey is the fixed name under which the last activity is stored.
const StorageKey = "lastActivity"

// Store holds the last activity timestamp. Writes are last-write-wins.
type Store interface {
	LastActivity() (time.Time, bool)
	Touch(at time.Time)
	// Clear forgets the timestamp once the session is logged out.
	Clear()
}

// MemoryStore is a process-wide Store safe for concurrent use.
type MemoryStore struct {
	unixMilli atomic.Int64
}

// LastActivity implements Store.
func (m *MemoryStore) LastActivity() (time.Time, bool) {
	ms := m.unixMilli.Load()
	if ms == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Touch implements Store.
func (m *MemoryStore) Touch(at time.Time) {
	m.unixMilli.Store(at.UnixMilli())
}

// Clear implements Store.
func (m *MemoryStore) Clear() {
	m.unixMilli.Store(0)
}

// KV is the subset of a session needed to persist activity.
type KV interface {
	Get(key string) string
	Set(key, value string)
	Delete(key string)
}

// SessionStore keeps the timestamp in a session under StorageKey as epoch milliseconds.
type SessionStore struct {
	Session KV
}

// LastActivity implements Store.
func (s SessionStore) LastActivity() (time.Time, bool) {
	if s.Session == nil {
		return time.Time{}, false
	}
	raw := s.Session.Get(StorageKey)
	if raw == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Touch implements Store.
func (s SessionStore) Touch(at time.Time) {
	if s.Session == nil {
		return
	}
	s.Session.Set(StorageKey, strconv.FormatInt(at.UnixMilli(), 10))
}

// Clear implements Store.
func (s SessionStore) Clear() {
	if s.Session == nil {
		return
	}
	s.Session.Delete(StorageKey)
}
