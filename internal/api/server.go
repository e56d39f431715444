// Package api wires the HTTP surfaces: the authenticated agent gateway, the
// public claim flow, the read-only observer API, skill documentation and the
// live websocket feed.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CloudKingTV/The-Observatory/internal/config"
	"github.com/CloudKingTV/The-Observatory/internal/economy"
	"github.com/CloudKingTV/The-Observatory/internal/events"
	"github.com/CloudKingTV/The-Observatory/internal/gateway"
	"github.com/CloudKingTV/The-Observatory/internal/ledger"
	"github.com/CloudKingTV/The-Observatory/internal/lifecycle"
	"github.com/CloudKingTV/The-Observatory/internal/messaging"
	"github.com/CloudKingTV/The-Observatory/internal/world"
)

// Server owns the router and the underlying http.Server.
type Server struct {
	cfg        config.Config
	state      *world.State
	gateway    *gateway.AgentGateway
	lifecycle  *lifecycle.Manager
	ledger     *ledger.EventLedger
	bus        *messaging.Bus
	trades     *economy.TradeLedger
	accounting *economy.Accounting
	hub        *events.Hub
	onEvent    world.EventSink

	httpServer *http.Server
}

// New assembles the server. onEvent receives claim events for the ledger;
// registry backs the /metrics endpoint.
func New(cfg config.Config, state *world.State, gw *gateway.AgentGateway, lc *lifecycle.Manager, led *ledger.EventLedger, bus *messaging.Bus, trades *economy.TradeLedger, acct *economy.Accounting, hub *events.Hub, onEvent world.EventSink, registry *prometheus.Registry) *Server {
	s := &Server{
		cfg:        cfg,
		state:      state,
		gateway:    gw,
		lifecycle:  lc,
		ledger:     led,
		bus:        bus,
		trades:     trades,
		accounting: acct,
		hub:        hub,
		onEvent:    onEvent,
	}

	router := mux.NewRouter()
	router.Use(corsMiddleware)
	router.Use(loggingMiddleware)

	// Operational surface.
	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")
	if hub != nil {
		router.HandleFunc("/ws", hub.ServeWS)
	}

	// Skill documentation: plain documents agents fetch to learn the API.
	docs := buildDocs(cfg.Domain)
	router.HandleFunc("/skill.md", serveDoc(docs.skill, "text/markdown; charset=utf-8")).Methods("GET")
	router.HandleFunc("/heartbeat.md", serveDoc(docs.heartbeat, "text/markdown; charset=utf-8")).Methods("GET")
	router.HandleFunc("/messaging.md", serveDoc(docs.messaging, "text/markdown; charset=utf-8")).Methods("GET")
	router.HandleFunc("/skill.json", s.handleSkillJSON).Methods("GET")

	// Agent gateway (write). Registration endpoints run their own
	// verification; everything else goes through the auth middleware.
	router.HandleFunc("/agent/register/challenge", s.handleChallenge).Methods("POST")
	router.HandleFunc("/agent/register", s.handleRegister).Methods("POST")

	agentRoutes := router.PathPrefix("/agent").Subrouter()
	agentRoutes.Use(s.authMiddleware)
	agentRoutes.HandleFunc("/observe", s.handleObserve).Methods("POST")
	agentRoutes.HandleFunc("/action", s.handleAction).Methods("POST")
	agentRoutes.HandleFunc("/message", s.handleMessage).Methods("POST")
	agentRoutes.HandleFunc("/inbox", s.handleInbox).Methods("GET")

	// Claim flow: public, token-gated.
	router.HandleFunc("/claim/{token}", s.handleClaimInfo).Methods("GET")
	router.HandleFunc("/claim/{token}/verify", s.handleClaimVerify).Methods("POST")

	// Observer surface (read-only). Method filtering happens in the
	// middleware so a write attempt gets a JSON 405 instead of mux's default.
	observer := router.PathPrefix("/api/observer").Subrouter()
	observer.Use(readOnlyMiddleware)
	observer.HandleFunc("/world/state", s.handleWorldState)
	observer.HandleFunc("/world/regions", s.handleWorldRegions)
	observer.HandleFunc("/agents", s.handleAgents)
	observer.HandleFunc("/agents/{id}", s.handleAgent)
	observer.HandleFunc("/ledger/events", s.handleLedgerEvents)
	observer.HandleFunc("/ledger/integrity", s.handleLedgerIntegrity)
	observer.HandleFunc("/analytics/summary", s.handleAnalytics)
	observer.HandleFunc("/replay/{tick}", s.handleReplay)
	observer.HandleFunc("/timeline", s.handleTimeline)
	observer.HandleFunc("/timeline/{agent_id}", s.handleAgentTimeline)
	observer.HandleFunc("/trades", s.handleTrades)
	observer.HandleFunc("/messages", s.handleMessages)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe runs the server until Shutdown.
func (s *Server) ListenAndServe() error {
	slog.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	total, alive, _ := s.state.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"service":      "observatory",
		"tick":         s.state.Tick(),
		"total_agents": total,
		"alive_agents": alive,
	})
}

func serveDoc(doc, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(doc))
	}
}

// ── response helpers ─────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
