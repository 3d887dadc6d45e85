package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/yanyan-huang/pmpal/internal/conversation"
	"github.com/yanyan-huang/pmpal/internal/memory"
	"github.com/yanyan-huang/pmpal/internal/protocol"
)

type exchangeRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

type modeRequest struct {
	UserID string `json:"user_id"`
	Mode   string `json:"mode"`
}

type modelRequest struct {
	Model string `json:"model"`
}

type modeInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Greeting    string `json:"greeting,omitempty"`
}

type historyResponse struct {
	UserID  string                 `json:"user_id"`
	Records []memory.HistoryRecord `json:"records"`
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_user", "user_id is required")
		return
	}

	reply, err := s.manager.ProcessInput(r.Context(), req.UserID, req.Text, protocol.ParseSource(req.Source))
	if err != nil {
		respondManagerError(w, r, "exchange", err)
		return
	}
	respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleModeSwitch(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_user", "user_id is required")
		return
	}

	reply, err := s.manager.SwitchMode(r.Context(), req.UserID, req.Mode)
	if err != nil {
		respondManagerError(w, r, "mode switch", err)
		return
	}
	status := http.StatusOK
	if reply.Kind == conversation.KindInvalidMode {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, reply)
}

func (s *Server) handleListModes(w http.ResponseWriter, _ *http.Request) {
	all := s.manager.Registry().All()
	out := make([]modeInfo, 0, len(all))
	for _, m := range all {
		out = append(out, modeInfo{Name: m.Name, Description: m.Description, Greeting: m.Greeting})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"modes": out,
		"help":  conversation.HelpText(s.manager.Registry()),
	})
}

func (s *Server) handleUserStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.manager.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondManagerError(w, r, "status", err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.HistoryPageLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		if limit <= 0 || n < limit {
			limit = n
		}
	}

	userID := chi.URLParam(r, "id")
	records, err := s.manager.History(r.Context(), userID, limit)
	if err != nil {
		respondManagerError(w, r, "history", err)
		return
	}
	if records == nil {
		records = []memory.HistoryRecord{}
	}
	respondJSON(w, http.StatusOK, historyResponse{UserID: userID, Records: records})
}

func (s *Server) handleUserReset(w http.ResponseWriter, r *http.Request) {
	reply, err := s.manager.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondManagerError(w, r, "reset", err)
		return
	}
	respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleUserModel(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	userID := chi.URLParam(r, "id")
	if err := s.manager.SetModel(r.Context(), userID, req.Model); err != nil {
		respondManagerError(w, r, "set model", err)
		return
	}
	st, err := s.manager.Status(r.Context(), userID)
	if err != nil {
		respondManagerError(w, r, "status", err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}
