// Package api exposes admission decisions over a small HTTP JSON surface.
package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/quotagate/quotagate/internal/auth"
	"github.com/quotagate/quotagate/internal/obs"
	"github.com/quotagate/quotagate/internal/quota"
	"github.com/quotagate/quotagate/internal/stats"
)

type Handlers struct {
	quotas  *quota.Registry
	metrics *obs.Metrics
	stats   stats.Recorder
}

// New wires the handlers. metrics must be non-nil; a nil recorder falls back
// to the noop sink.
func New(quotas *quota.Registry, m *obs.Metrics, rec stats.Recorder) *Handlers {
	if rec == nil {
		rec = stats.Noop{}
	}
	return &Handlers{quotas: quotas, metrics: m, stats: rec}
}

type decideRequest struct {
	Key  string `json:"key"`
	Cost uint32 `json:"cost"`
}

type decideResponse struct {
	Allowed        bool    `json:"allowed"`
	RetryAfterMS   int64   `json:"retry_after_ms"`
	QuotaRemaining float64 `json:"quota_remaining"`
}

type statusResponse struct {
	Key                   string  `json:"key"`
	TokensRemaining       float64 `json:"tokens_remaining"`
	RefillRate            float64 `json:"refill_rate"`
	Capacity              float64 `json:"capacity"`
	TimeSinceLastRefillMS int64   `json:"time_since_last_refill_ms"`
}

type configureRequest struct {
	Key        string  `json:"key"`
	RefillRate float64 `json:"refill_rate"`
	Capacity   float64 `json:"capacity"`
}

type configureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Decide answers one admission check. Denials are still HTTP 200: an answer,
// not a transport error.
func (h *Handlers) Decide() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}

		var req decideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			hlog.FromRequest(r).Debug().Err(err).Msg("decide: bad body")
			writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
			return
		}
		if req.Key == "" {
			writeError(w, http.StatusBadRequest, "missing_key", "key is required")
			return
		}

		dec := h.quotas.Decide(req.Key, req.Cost)

		h.metrics.ObserveDecision(dec.Allowed)
		if err := h.stats.Record(r.Context(), stats.Event{
			Key:     req.Key,
			Allowed: dec.Allowed,
			Cost:    req.Cost,
			At:      time.Now(),
		}); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("stats record failed")
		}

		resp := decideResponse{
			Allowed:        dec.Allowed,
			RetryAfterMS:   dec.RetryAfter.Milliseconds(),
			QuotaRemaining: dec.Remaining,
		}
		if !dec.Allowed {
			w.Header().Set("Retry-After", strconv.FormatInt(ceilSeconds(dec.RetryAfter), 10))
		}

		hlog.FromRequest(r).Debug().
			Str("key", req.Key).
			Uint32("cost", req.Cost).
			Bool("allowed", resp.Allowed).
			Int64("retry_after_ms", resp.RetryAfterMS).
			Float64("remaining", resp.QuotaRemaining).
			Msg("decide")

		writeJSON(w, http.StatusOK, resp)
	})
}

// Status reports a key's bucket without consuming. An unknown key gets the
// default bucket, same as a first decide would.
func (h *Handlers) Status() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}

		key := r.URL.Query().Get("key")
		if key == "" {
			writeError(w, http.StatusBadRequest, "missing_key", "key query parameter is required")
			return
		}

		st := h.quotas.Describe(key)
		resp := statusResponse{
			Key:                   st.Key,
			TokensRemaining:       st.Tokens,
			RefillRate:            st.Rate,
			Capacity:              st.Capacity,
			TimeSinceLastRefillMS: st.SinceRefill.Milliseconds(),
		}

		hlog.FromRequest(r).Debug().
			Str("key", key).
			Float64("tokens", resp.TokensRemaining).
			Msg("status")

		writeJSON(w, http.StatusOK, resp)
	})
}

// Configure replaces a key's bucket with freshly validated limits. The new
// bucket starts full; a validation failure mutates nothing.
func (h *Handlers) Configure() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}

		var req configureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			hlog.FromRequest(r).Debug().Err(err).Msg("configure: bad body")
			writeError(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
			return
		}
		if req.Key == "" {
			writeError(w, http.StatusBadRequest, "missing_key", "key is required")
			return
		}

		err := h.quotas.Configure(req.Key, quota.Limits{Rate: req.RefillRate, Capacity: req.Capacity})
		h.metrics.ObserveConfigure(err == nil)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, configureResponse{
				Success: false,
				Message: "Invalid rate limiter configuration. Values must be positive.",
			})
			return
		}

		adminID, _ := auth.KeyIDFrom(r.Context())
		if adminID == "" {
			adminID = "anonymous"
		}
		hlog.FromRequest(r).Info().
			Str("key", req.Key).
			Float64("refill_rate", req.RefillRate).
			Float64("capacity", req.Capacity).
			Str("admin_id", adminID).
			Msg("limiter configured")

		writeJSON(w, http.StatusOK, configureResponse{
			Success: true,
			Message: "Rate limiter configured successfully",
		})
	})
}

// ceilSeconds converts a wait into whole seconds for the Retry-After header,
// rounding up so the client never comes back early.
func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", allow+" required")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError keeps the same error envelope the auth middleware emits.
func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":{"code":"` + errCode + `","message":"` + msg + `"}}`))
}
