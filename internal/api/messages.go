package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"classhub/pkg/types"
)

type SendRequest struct {
	Content string `json:"content"`
}

// GET /api/classes/{classID}/messages
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	classID := chi.URLParam(r, "classID")
	if _, err := s.deps.Classes.CanAccess(r.Context(), classID, currentUser(r).ID); err != nil {
		s.writeError(w, r, err)
		return
	}

	messages, err := s.deps.History.GetClassHistory(r.Context(), classID)
	if err != nil {
		s.logger.Warn("History read failed", zap.String("class_id", classID), zap.Error(err))
		s.writeError(w, r, types.ErrFetch)
		return
	}
	if messages == nil {
		messages = []*types.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// POST /api/classes/{classID}/messages
// FUNCTIONAL DISCOVERY: Validation of the content happens in the send
// pipeline so HTTP and websocket senders get identical rules
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := s.decode(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	msg, err := s.deps.Sender.Send(r.Context(), chi.URLParam(r, "classID"), currentUser(r).ID, req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"message": msg})
}

// GET /api/threads
func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.deps.Classes.Threads(r.Context(), currentUser(r).ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if threads == nil {
		threads = []types.Thread{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"threads": threads})
}
