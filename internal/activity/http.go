package activity

import (
	"log/slog"
	"net/http"

	"github.com/civicconnect/civic/internal/platform/httpx"
)

// TrackerFunc builds the tracker for the session carried by r.
type TrackerFunc func(r *http.Request) *Tracker

type heartbeatRequest struct {
	Event string `json:"event"`
}

// HeartbeatHandler records a client-reported interaction. It checks staleness
// itself so it stays safe on routes mounted without ExpireIdle.
func HeartbeatHandler(trackers TrackerFunc, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req heartbeatRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Message(w, http.StatusBadRequest, "Invalid activity payload")
			return
		}
		kind, err := ParseEventKind(req.Event)
		if err != nil {
			httpx.Message(w, http.StatusBadRequest, err.Error())
			return
		}
		tracker := trackers(r)
		if tracker == nil {
			httpx.Message(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if tracker.Expired() {
			tracker.expire(r.Context())
			if logger != nil {
				logger.Info("session expired on heartbeat", slog.String("event", string(kind)))
			}
			httpx.Message(w, http.StatusUnauthorized, "Session expired")
			return
		}
		tracker.Touch()
		w.WriteHeader(http.StatusNoContent)
	}
}

// ExpireIdle rejects requests whose session went idle past the timeout. The
// tracker's expire hook runs before the 401 so the session is logged out.
// Requests carrying no recorded activity pass through untouched.
func ExpireIdle(trackers TrackerFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tracker := trackers(r)
			if tracker == nil || !tracker.Expired() {
				next.ServeHTTP(w, r)
				return
			}
			tracker.expire(r.Context())
			if logger != nil {
				logger.Info("api session expired", slog.String("path", r.URL.Path))
			}
			httpx.Message(w, http.StatusUnauthorized, "Session expired")
		})
	}
}
