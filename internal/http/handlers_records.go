package http

import (
	"net/http"
	"strconv"

	"smartaccounting/internal/core"
)

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query(), s.now())
	if err != nil {
		fail(w, r, err)
		return
	}
	recs, err := s.ledger.ListRecords(r.Context(), userFrom(r.Context()), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": s.present.records(recs),
		"count":   len(recs),
	})
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	rec, err := req.toRecord(core.DateOf(s.now()))
	if err != nil {
		fail(w, r, err)
		return
	}
	saved, err := s.ledger.AddRecord(r.Context(), userFrom(r.Context()), rec)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/records/"+strconv.FormatInt(saved.ID, 10))
	writeJSON(w, http.StatusCreated, s.present.record(saved))
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	rec, err := s.ledger.GetRecord(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.present.record(rec))
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	rec, err := req.toRecord(core.DateOf(s.now()))
	if err != nil {
		fail(w, r, err)
		return
	}
	rec.ID = id
	saved, err := s.ledger.UpdateRecord(r.Context(), userFrom(r.Context()), rec)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.present.record(saved))
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.ledger.DeleteRecord(r.Context(), userFrom(r.Context()), id); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAllRecords(w http.ResponseWriter, r *http.Request) {
	n, err := s.ledger.DeleteAllRecords(r.Context(), userFrom(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
