package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/p-n-ai/scai/internal/curriculum"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleSubjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"subjects": s.curricula.Subjects()})
}

func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	table, ok := s.table(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, table.Summary())
}

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	table, ok := s.table(w, r)
	if !ok {
		return
	}
	chapter, lesson := r.PathValue("chapter"), r.PathValue("lesson")
	if _, found := table.Lesson(chapter, lesson); !found {
		writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("lesson %s of chapter %s not found", lesson, chapter)})
		return
	}
	writeJSON(w, http.StatusOK, table.Goals(chapter, lesson))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	table, ok := s.table(w, r)
	if !ok {
		return
	}
	// Buffered so a failed export can still report an error status.
	var buf bytes.Buffer
	if err := curriculum.ExportXLSX(&buf, table); err != nil {
		writeError(w, r, fmt.Errorf("export curriculum: %w", err))
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, table.Subject+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) table(w http.ResponseWriter, r *http.Request) (*curriculum.Table, bool) {
	subject := r.PathValue("subject")
	table, ok := s.curricula.Table(subject)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: fmt.Sprintf("subject %q not found", subject)})
		return nil, false
	}
	return table, true
}
