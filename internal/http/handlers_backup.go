package http

import (
	"net/http"
	"strconv"

	"smartaccounting/internal/backup"
	"smartaccounting/internal/services"
)

func importJSON(res services.ImportResult) map[string]int {
	return map[string]int{"imported": res.Imported, "skipped": res.Skipped}
}

// handleExport writes the caller's backup file on the server.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	res, err := s.backups.Export(r.Context(), userFrom(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": res.Count, "file": res.FileName})
}

// handleImport restores the caller's ledger from their server side file.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	res, err := s.backups.Import(r.Context(), userFrom(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importJSON(res))
}

// handleDownloadBackup streams the caller's ledger as a backup file.
func (s *Server) handleDownloadBackup(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r.Context())
	data, n, err := s.backups.Encode(r.Context(), userID)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+backup.FileName(userID)+`"`)
	w.Header().Set("X-Record-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleUploadBackup replaces the caller's ledger with the uploaded file.
func (s *Server) handleUploadBackup(w http.ResponseWriter, r *http.Request) {
	data, err := readBackupBody(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	res, err := s.backups.ImportData(r.Context(), userFrom(r.Context()), data)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importJSON(res))
}
