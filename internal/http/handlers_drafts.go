package http

import (
	"net/http"

	"replenishment/internal/log"
)

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	key, err := draftKeyParam(r)
	if err != nil {
		writeError(w, r, log.OpLoad, err)
		return
	}
	d, err := s.scale.LoadDraft(r.Context(), key)
	if err != nil {
		writeError(w, r, log.OpLoad, err)
		return
	}
	NewResponse().Data(d).Write(w)
}

func (s *Server) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	key, err := draftKeyParam(r)
	if err != nil {
		writeError(w, r, log.OpSave, err)
		return
	}
	var req tableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpSave, err)
		return
	}
	d, err := s.scale.SaveDraft(r.Context(), key, req.Records)
	if err != nil {
		writeError(w, r, log.OpSave, err)
		return
	}
	NewResponse().Data(d).Write(w)
}

func (s *Server) handleDiscardDraft(w http.ResponseWriter, r *http.Request) {
	key, err := draftKeyParam(r)
	if err != nil {
		writeError(w, r, log.OpPurge, err)
		return
	}
	if err := s.scale.DiscardDraft(r.Context(), key); err != nil {
		writeError(w, r, log.OpPurge, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

// handleRecoverDraft compares a stored draft with the current server table.
// needs_decision tells the dashboard to offer restore or discard.
func (s *Server) handleRecoverDraft(w http.ResponseWriter, r *http.Request) {
	key, err := draftKeyParam(r)
	if err != nil {
		writeError(w, r, log.OpRecover, err)
		return
	}
	rec, err := s.scale.RecoverDraft(r.Context(), key)
	if err != nil {
		writeError(w, r, log.OpRecover, err)
		return
	}
	NewResponse().Data(rec).Write(w)
}
