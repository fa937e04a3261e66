package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/p-n-ai/scai/internal/tutor"
)

const maxBodyBytes = 64 << 10

type actionRequest struct {
	Action string `json:"action"`
	Value  string `json:"value,omitempty"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req tutor.StartRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	reply, err := s.coord.Start(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reply)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.coord.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	reply, err := s.coord.End(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Action == "" {
		writeError(w, r, fmt.Errorf("%w: action is required", tutor.ErrInvalidRequest))
		return
	}
	reply, err := s.coord.Act(r.Context(), r.PathValue("id"), req.Action, req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// handleWebSocket upgrades only for sessions that exist and are still open.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.coord.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sess.Ended() {
		writeError(w, r, fmt.Errorf("%w: %s", tutor.ErrSessionEnded, id))
		return
	}
	s.ws.Serve(w, r, id)
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	sel, found, err := s.coord.Selection(r.Context(), r.PathValue("user"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no selection saved"})
		return
	}
	writeJSON(w, http.StatusOK, sel)
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.ClearSelection(r.Context(), r.PathValue("user")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", tutor.ErrInvalidRequest, err)
	}
	return nil
}
