// Package handler exposes the control and read API over chi. It is a thin
// layer over the repository and the orchestrator; all trading state lives
// behind those interfaces.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/your-org/agent-arena-bot/internal/events"
	"github.com/your-org/agent-arena-bot/internal/ledger"
	"github.com/your-org/agent-arena-bot/internal/orchestrator"
)

const defaultListLimit = 50

// API wires the HTTP surface to the orchestrator, the ledger, and the
// websocket hub.
type API struct {
	orch   *orchestrator.Orchestrator
	repo   ledger.Repository
	hub    *events.Hub
	logger *zap.Logger
}

// NewAPI creates the API handler set.
func NewAPI(orch *orchestrator.Orchestrator, repo ledger.Repository, hub *events.Hub, logger *zap.Logger) *API {
	return &API{orch: orch, repo: repo, hub: hub, logger: logger.Named("http")}
}

// Router builds the chi router with all routes registered.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", HealthCheckHandler)
	r.Get("/ready", a.ready)

	r.Route("/api", func(r chi.Router) {
		r.Post("/control/start", a.start)
		r.Post("/control/stop", a.stop)
		r.Post("/control/trigger", a.trigger)
		r.Get("/control/status", a.status)

		r.Get("/agents", a.listAgents)
		r.Get("/agents/{id}/trades", a.agentTrades)
		r.Get("/markets", a.listMarkets)
		r.Get("/trades", a.listTrades)
		r.Get("/metrics/{agent}", a.agentMetrics)
		r.Get("/alerts", a.listAlerts)
		r.Post("/alerts/{id}/read", a.markAlertRead)
		r.Post("/alerts/{id}/dismiss", a.markAlertDismissed)
		r.Get("/cycles", a.listCycles)
	})

	if a.hub != nil {
		r.Get("/ws", a.hub.ServeWS)
	}
	return r
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, map[string]string{"error": msg})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	if err := a.repo.Ping(r.Context()); err != nil {
		a.writeError(w, http.StatusServiceUnavailable, "ledger unreachable")
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (a *API) start(w http.ResponseWriter, r *http.Request) {
	if err := a.orch.Start(r.Context()); err != nil {
		a.logger.Error("Start failed", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "failed to start")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"active": a.orch.IsActive()})
}

func (a *API) stop(w http.ResponseWriter, r *http.Request) {
	a.orch.Stop()
	a.writeJSON(w, http.StatusOK, map[string]any{"active": a.orch.IsActive()})
}

func (a *API) trigger(w http.ResponseWriter, r *http.Request) {
	if err := a.orch.TriggerCycle(r.Context()); err != nil {
		a.logger.Error("Trigger failed", zap.Error(err))
		a.writeError(w, http.StatusInternalServerError, "failed to trigger cycle")
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"active": a.orch.IsActive(),
		"cycle":  a.orch.CycleNumber(),
	})
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"active": a.orch.IsActive(),
		"cycle":  a.orch.CycleNumber(),
	})
}

func (a *API) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := a.repo.ListAgents(r.Context(), false)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}
	a.writeJSON(w, http.StatusOK, agents)
}

// agentTrades serves one agent's fill history; rejected attempts are visible
// through /api/trades and the alert stream instead.
func (a *API) agentTrades(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	if _, err := a.repo.GetAgent(r.Context(), agentID); errors.Is(err, ledger.ErrNotFound) {
		a.writeError(w, http.StatusNotFound, "agent not found")
		return
	} else if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to load agent")
		return
	}
	trades, err := a.repo.ExecutedTradesByAgent(r.Context(), agentID)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	a.writeJSON(w, http.StatusOK, trades)
}

func (a *API) listMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := a.repo.ListMarkets(r.Context())
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}
	a.writeJSON(w, http.StatusOK, markets)
}

func (a *API) listTrades(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r)
	trades, err := a.repo.RecentTrades(r.Context(), limit)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	a.writeJSON(w, http.StatusOK, trades)
}

func (a *API) agentMetrics(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent")
	m, err := a.repo.LatestMetricsByAgent(r.Context(), agentID)
	if errors.Is(err, ledger.ErrNotFound) {
		a.writeError(w, http.StatusNotFound, "no metrics for agent")
		return
	}
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to load metrics")
		return
	}
	a.writeJSON(w, http.StatusOK, m)
}

func (a *API) listAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := a.repo.RecentAlerts(r.Context(), queryLimit(r))
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	a.writeJSON(w, http.StatusOK, alerts)
}

func (a *API) markAlertRead(w http.ResponseWriter, r *http.Request) {
	a.mutateAlert(w, r, a.repo.MarkAlertRead)
}

func (a *API) markAlertDismissed(w http.ResponseWriter, r *http.Request) {
	a.mutateAlert(w, r, a.repo.MarkAlertDismissed)
}

func (a *API) mutateAlert(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) error) {
	id := chi.URLParam(r, "id")
	err := fn(r.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		a.writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to update alert")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := a.repo.RecentCycles(r.Context(), queryLimit(r))
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, "failed to list cycles")
		return
	}
	a.writeJSON(w, http.StatusOK, cycles)
}

func queryLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultListLimit
}
