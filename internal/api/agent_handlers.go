package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/CloudKingTV/The-Observatory/internal/gateway"
	"github.com/CloudKingTV/The-Observatory/internal/lifecycle"
	"github.com/CloudKingTV/The-Observatory/internal/world"
)

func (s *Server) handleChallenge(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"challenge": s.gateway.NewChallenge()})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req gateway.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.gateway.Register(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":              true,
		"agent_id":             result.AgentID,
		"display_name":         result.DisplayName,
		"claim_token":          result.ClaimToken,
		"claim_url":            result.ClaimURL,
		"initial_spawn_region": result.InitialSpawnRegion,
		"initial_resources":    result.InitialResources,
		"auth_method":          result.AuthMethod,
		"instructions":         result.Instructions,
	})
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	agentID := agentFromContext(r.Context())
	result, err := s.gateway.Observe(agentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"tick":           result.Tick,
		"region":         result.Region,
		"visible_agents": result.VisibleAgents,
		"your_resources": result.Resources,
		"your_status":    result.Status,
		"inbox":          result.Inbox,
		"pending_trades": result.PendingTrades,
	})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	agentID := agentFromContext(r.Context())
	var req struct {
		ActionType string         `json:"action_type"`
		Params     map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.gateway.SubmitAction(agentID, req.ActionType, req.Params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"action_type": result.ActionType,
		"details":     result.Details,
	})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	agentID := agentFromContext(r.Context())
	var req struct {
		TargetAgent string `json:"target_agent"`
		Content     string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.gateway.SendMessage(agentID, req.TargetAgent, req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"action_type": result.ActionType,
		"details":     result.Details,
	})
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	agentID := agentFromContext(r.Context())
	sinceTick, _ := strconv.ParseInt(r.URL.Query().Get("since_tick"), 10, 64)
	messages := s.gateway.Inbox(agentID, sinceTick)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"messages": messages,
		"count":    len(messages),
	})
}

// ── claim flow ───────────────────────────────────────────────────────────

func (s *Server) handleClaimInfo(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	info, err := s.lifecycle.VerificationPhrase(token)
	if err != nil {
		writeError(w, claimStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"agent_id":            info.AgentID,
		"display_name":        info.DisplayName,
		"verification_phrase": info.Phrase,
		"short_code":          info.ShortCode,
		"instructions":        info.Instructions,
	})
}

func (s *Server) handleClaimVerify(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	var req struct {
		OwnerIdentity      string `json:"owner_identity"`
		VerificationMethod string `json:"verification_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.lifecycle.Claim(token, req.OwnerIdentity, req.VerificationMethod)
	if err != nil {
		writeError(w, claimStatus(err), err.Error())
		return
	}
	if s.onEvent != nil {
		s.onEvent(world.EventData{
			Tick:       s.state.Tick(),
			ActionType: "claim",
			AgentID:    result.AgentID,
			Success:    true,
			Details: map[string]any{
				"owner_identity":      result.OwnerIdentity,
				"verification_method": result.VerificationMethod,
			},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":             true,
		"agent_id":            result.AgentID,
		"display_name":        result.DisplayName,
		"owner_identity":      result.OwnerIdentity,
		"verification_method": result.VerificationMethod,
		"status":              result.Status,
	})
}

func claimStatus(err error) int {
	switch {
	case errors.Is(err, lifecycle.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, lifecycle.ErrTokenNotFound), errors.Is(err, lifecycle.ErrTokenExpired):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}
