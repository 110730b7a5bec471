package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2ndtlmining/fluxrevenue-go/core"
)

// apiServer exposes the indexer's read and control surface over HTTP,
// backed by the Aggregator, Sync Engine, and Store.
type apiServer struct {
	aggregator *core.Aggregator
	engine     *core.SyncEngine
	status     *core.StatusPublisher
	metrics    *core.Metrics
}

func newRouter(s *apiServer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/sync/status", s.handleSyncStatus)
		r.Post("/sync/trigger", s.handleSyncTrigger)
		r.Post("/sync/backfill", s.handleBackfillTrigger)

		r.Get("/revenue", s.handleRevenue)
		r.Get("/revenue/{address}", s.handleRevenue)
		r.Get("/revenue/{address}/blocks", s.handleRevenueByBlocks)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/transactions/{address}", s.handleTransactions)
		r.Get("/network/snapshot", s.handleNetworkSnapshot)
	})

	return r
}

func (s *apiServer) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *apiServer) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.RunCycle(r.Context())
	if err != nil && err != core.ErrAlreadyRunning {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, status)
}

func (s *apiServer) handleBackfillTrigger(w http.ResponseWriter, r *http.Request) {
	limit := 500
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	updated, err := s.engine.BackfillSenders(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// revenueResponse is the combined daily series and total across every
// requested address, plus an optional per-address breakdown.
type revenueResponse struct {
	Addresses []string                       `json:"addresses"`
	Daily     []core.DailyRevenueRow         `json:"daily"`
	Total     float64                        `json:"total"`
	Breakdown map[string]core.RevenueSummary `json:"breakdown,omitempty"`
}

func (s *apiServer) handleRevenue(w http.ResponseWriter, r *http.Request) {
	addresses := requestedAddresses(r)
	sinceTS := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			sinceTS = parsed
		}
	}

	if len(addresses) == 1 && r.URL.Query().Get("breakdown") == "" {
		summary, err := s.aggregator.Revenue(addresses[0], sinceTS)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
		return
	}

	daily, err := s.aggregator.CombinedRevenue(addresses, sinceTS)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	var total float64
	for _, row := range daily {
		total += row.Sum
	}

	resp := revenueResponse{Addresses: addresses, Daily: daily, Total: total}
	if r.URL.Query().Get("breakdown") != "" {
		breakdown, err := s.aggregator.Breakdown(addresses, sinceTS)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		resp.Breakdown = breakdown
	}
	writeJSON(w, http.StatusOK, resp)
}

// requestedAddresses reads a comma-separated "addresses" query parameter,
// falling back to the single path-parameter address.
func requestedAddresses(r *http.Request) []string {
	if raw := r.URL.Query().Get("addresses"); raw != "" {
		parts := strings.Split(raw, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return []string{chi.URLParam(r, "address")}
}

func (s *apiServer) handleRevenueByBlocks(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "day"
	}
	// Block-based period windows resolve against the store's highest
	// synced height, not the live chain tip.
	status := s.status.Snapshot()
	result, err := s.aggregator.RevenueByBlocks(address, period, status.HighestSynced)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleTransactions(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	page, limit := 1, 50
	if raw := r.URL.Query().Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			page = parsed
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	search := r.URL.Query().Get("search")

	result, err := s.aggregator.Transactions(address, page, limit, search)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleNetworkSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.aggregator.LatestNetworkSnapshot()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
