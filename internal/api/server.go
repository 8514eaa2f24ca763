// Package api serves the read-only HTTP query surface. Projection-backed
// queries (balances, execution history) read PostgreSQL directly; live
// state (portfolios, policies, oracle, executor counters) is read on the
// core goroutine through CoreView, since the core structures are not
// internally locked.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/GuardX-protocol/guardx-engine/internal/executor"
	"github.com/GuardX-protocol/guardx-engine/internal/ledger"
	"github.com/GuardX-protocol/guardx-engine/internal/observability"
	"github.com/GuardX-protocol/guardx-engine/internal/oracle"
	"github.com/GuardX-protocol/guardx-engine/internal/policy"
)

// CoreView serializes read access to the single-threaded protection core.
// The callback runs on the core goroutine between events; it must return
// quickly and must not mutate anything it reads.
type CoreView interface {
	View(ctx context.Context, fn func()) error
}

// ServerDeps holds what the HTTP handlers read from.
type ServerDeps struct {
	Queries  *QueryService
	View     CoreView
	Registry *ledger.Registry
	Ledger   *ledger.AssetLedger
	Policies *policy.Store
	Oracle   *oracle.Oracle
	Executor *executor.EmergencyExecutor
	Health   *observability.HealthChecker
	Metrics  *observability.Metrics
	Log      zerolog.Logger
}

// Server is the HTTP query API.
type Server struct {
	httpServer *http.Server
	deps       *ServerDeps
	log        zerolog.Logger
}

func NewServer(addr string, deps *ServerDeps) *Server {
	s := &Server{deps: deps, log: deps.Log}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/balance/{owner}/{asset}", s.instrument("balance", s.handleBalance)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/portfolio/{owner}", s.instrument("portfolio", s.handlePortfolio)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/policy/{owner}", s.instrument("policy", s.handlePolicy)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/executor/stats", s.instrument("executor_stats", s.handleExecutorStats)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/oracle/{feed}/latest", s.instrument("oracle_latest", s.handleOracleLatest)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/executions/{owner}", s.instrument("executions", s.handleExecutions)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", deps.Health.LivenessHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", deps.Health.ReadinessHandler).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("query API listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// instrument wraps a handler with per-endpoint request, latency and error
// metrics.
func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)

		m := s.deps.Metrics
		if m != nil {
			m.QueryRequests.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
			m.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
			if rec.status >= 500 {
				m.QueryErrors.WithLabelValues(endpoint).Inc()
			}
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	owner, ok := parseOwner(w, vars["owner"])
	if !ok {
		return
	}
	symbol := vars["asset"]
	if _, found := s.deps.Registry.Lookup(symbol); !found {
		writeError(w, http.StatusNotFound, "unknown asset: "+symbol)
		return
	}

	resp, err := s.deps.Queries.GetBalance(r.Context(), owner, symbol)
	if err != nil {
		s.log.Error().Err(err).Str("owner", owner.Hex()).Msg("balance query failed")
		writeError(w, http.StatusInternalServerError, "balance query failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseOwner(w, mux.Vars(r)["owner"])
	if !ok {
		return
	}

	var resp PortfolioResponse
	err := s.deps.View.View(r.Context(), func() {
		p := s.deps.Ledger.Portfolio(owner)
		if p == nil {
			// Owner has never held a custody balance.
			resp = PortfolioResponse{Owner: owner.Hex(), Entries: []PortfolioEntryResponse{}}
			return
		}
		resp = PortfolioResponse{
			Owner:       owner.Hex(),
			Entries:     make([]PortfolioEntryResponse, 0, len(p.Entries)),
			TotalUSD:    p.TotalUSD,
			RiskScoreBP: p.RiskScoreBP,
			LastUpdated: p.LastUpdated,
		}
		for _, e := range p.Entries {
			resp.Entries = append(resp.Entries, PortfolioEntryResponse{
				Asset:     s.deps.Registry.Symbol(e.AssetID),
				Amount:    e.Amount,
				USDValue:  e.USDValue,
				RiskLevel: e.RiskLevel,
			})
		}
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "core busy")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseOwner(w, mux.Vars(r)["owner"])
	if !ok {
		return
	}

	var (
		pol    policy.ProtectionPolicy
		polErr error
	)
	err := s.deps.View.View(r.Context(), func() {
		pol, polErr = s.deps.Policies.Get(owner)
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "core busy")
		return
	}
	if polErr != nil {
		writeError(w, http.StatusNotFound, polErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, PolicyResponse{
		Owner:            owner.Hex(),
		CrashThresholdBP: pol.CrashThresholdBP,
		MaxSlippageBP:    pol.MaxSlippageBP,
		Stablecoin:       s.deps.Registry.Symbol(pol.Stablecoin),
		GasBudget:        pol.GasBudget,
		UpdatedAt:        pol.UpdatedAt,
	})
}

func (s *Server) handleExecutorStats(w http.ResponseWriter, r *http.Request) {
	var stats executor.Stats
	err := s.deps.View.View(r.Context(), func() {
		stats = s.deps.Executor.StatsSnapshot()
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "core busy")
		return
	}

	writeJSON(w, http.StatusOK, ExecutorStatsResponse{
		TotalExecutions: stats.TotalExecutions,
		TotalConverted:  stats.TotalConverted,
		Paused:          stats.Paused,
	})
}

func (s *Server) handleOracleLatest(w http.ResponseWriter, r *http.Request) {
	feedID := mux.Vars(r)["feed"]

	var (
		obs    oracle.Observation
		obsErr error
		gaps   int64
		stale  int64
	)
	err := s.deps.View.View(r.Context(), func() {
		obs, obsErr = s.deps.Oracle.Latest(feedID)
		gaps = s.deps.Oracle.SequenceGaps(feedID)
		stale = s.deps.Oracle.StaleDropped(feedID)
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "core busy")
		return
	}
	if obsErr != nil {
		writeError(w, http.StatusNotFound, obsErr.Error())
		return
	}

	writeJSON(w, http.StatusOK, OracleLatestResponse{
		FeedID:       feedID,
		Price:        obs.Price,
		Timestamp:    obs.Timestamp,
		ConfidenceBP: obs.ConfidenceBP,
		SequenceGaps: gaps,
		StaleDropped: stale,
	})
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseOwner(w, mux.Vars(r)["owner"])
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := s.deps.Queries.GetExecutionHistory(r.Context(), owner, limit)
	if err != nil {
		s.log.Error().Err(err).Str("owner", owner.Hex()).Msg("execution history query failed")
		writeError(w, http.StatusInternalServerError, "execution history query failed")
		return
	}
	if entries == nil {
		entries = []ExecutionHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func parseOwner(w http.ResponseWriter, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid owner address: "+raw)
		return common.Address{}, false
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		writeError(w, http.StatusBadRequest, "zero owner address")
		return common.Address{}, false
	}
	return addr, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
