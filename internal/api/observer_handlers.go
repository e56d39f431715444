package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/CloudKingTV/The-Observatory/internal/ledger"
)

func (s *Server) handleWorldState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleWorldRegions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tick":    s.state.Tick(),
		"regions": s.state.RegionSummaries(),
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	snapshot := s.state.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"tick":   snapshot["tick"],
		"agents": snapshot["agents"],
	})
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	view, err := s.state.AgentPublicView(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLedgerEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := ledger.Query{
		AgentID:    q.Get("agent_id"),
		ActionType: q.Get("action_type"),
	}
	query.FromTick, _ = strconv.ParseInt(q.Get("from"), 10, 64)
	if raw := q.Get("to"); raw != "" {
		if to, err := strconv.ParseInt(raw, 10, 64); err == nil {
			query.ToTick = &to
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil {
			query.Limit = limit
		}
	}
	events := s.ledger.Events(query)
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleLedgerIntegrity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Integrity())
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	total, alive, claimed := s.state.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"tick":            s.state.Tick(),
		"total_agents":    total,
		"alive_agents":    alive,
		"claimed_agents":  claimed,
		"dead_agents":     total - alive,
		"ledger_events":   s.ledger.Count(),
		"latest_tick":     s.ledger.LatestTick(),
		"messages_sent":   s.bus.Count(),
		"trades_recorded": s.accounting.Count(),
		"trade_volume":    s.accounting.TotalVolume(),
		"pending_trades":  len(s.trades.PendingSnapshot()),
		"live_observers":  s.hub.ClientCount(),
	})
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	tick, err := strconv.ParseInt(mux.Vars(r)["tick"], 10, 64)
	if err != nil || tick < 0 {
		writeError(w, http.StatusBadRequest, "invalid tick")
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.ReconstructAtTick(tick))
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	events := s.ledger.Events(ledger.Query{Limit: limit})
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleAgentTimeline(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agent_id"]
	if !s.state.HasAgent(agentID) {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	events := s.ledger.Timeline(agentID)
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id": agentID,
		"events":   events,
		"count":    len(events),
	})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	pending := s.trades.PendingSnapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"pending_trades": pending,
		"count":          len(pending),
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	messages := s.bus.AllMessages(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}
