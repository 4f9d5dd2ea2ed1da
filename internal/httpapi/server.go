// Package httpapi exposes conversations over HTTP: a health probe, read-only
// status endpoints and a blocking ask endpoint.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/user/pdfchat/internal/conversation"
	"github.com/user/pdfchat/internal/gateway"
	"github.com/user/pdfchat/internal/types"
)

// Server is a lightweight HTTP handler over a gateway.
type Server struct {
	gateway *gateway.Gateway
	mux     *http.ServeMux
}

// NewServer creates a Server serving gw's conversations.
func NewServer(gw *gateway.Gateway) *Server {
	s := &Server{
		gateway: gw,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/ask", s.handleAsk)
	s.mux.HandleFunc("GET /api/conversations", s.handleList)
	s.mux.HandleFunc("GET /api/conversations/{key}", s.handleConversation)
	s.mux.HandleFunc("DELETE /api/conversations/{key}", s.handleReset)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"active": s.gateway.Pool.Active(),
	})
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	Prompt  string `json:"prompt"`
	Session string `json:"session"`
	Mode    string `json:"mode"`
}

type askResponse struct {
	Conversation types.ConversationKey `json:"conversation"`
	Messages     []types.Message       `json:"messages"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" || req.Session == "" {
		writeError(w, http.StatusBadRequest, "prompt and session are required")
		return
	}
	mode := conversation.Mode(req.Mode)
	switch mode {
	case "":
		mode = conversation.ModeGeneral
	case conversation.ModeGeneral, conversation.ModeDocument:
	default:
		writeError(w, http.StatusBadRequest, "mode must be general or document")
		return
	}

	in := &gateway.Inbound{Source: "http", ChatID: req.Session, Mode: mode, Text: req.Prompt}
	conv := s.gateway.Conversation(in.Key(), mode)
	before := conv.Transcript().Len()

	done := make(chan error, 1)
	if _, err := s.gateway.HandleInbound(in, func(_ *conversation.Conversation, err error) { done <- err }); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	var err error
	select {
	case err = <-done:
	case <-r.Context().Done():
		return
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, gateway.ErrBusy) || conversation.IsValidation(err) {
			status = http.StatusConflict
		}
		slog.Warn("ask rejected", "conversation", string(in.Key()), "error", err)
		writeError(w, status, err.Error())
		return
	}

	msgs := conv.Transcript().Messages()
	if before > len(msgs) {
		before = len(msgs)
	}
	writeJSON(w, http.StatusOK, askResponse{Conversation: in.Key(), Messages: msgs[before:]})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gateway.List())
}

type conversationResponse struct {
	gateway.Summary
	Transcript []types.Message `json:"transcript"`
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	key := types.ConversationKey(r.PathValue("key"))
	summary, ok := s.gateway.Summary(key)
	conv, found := s.gateway.Lookup(key)
	if !ok || !found {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conversationResponse{
		Summary:    summary,
		Transcript: conv.Transcript().Messages(),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	key := types.ConversationKey(r.PathValue("key"))
	if !s.gateway.Reset(key) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
