package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"deepreport/internal/services/reports"
)

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, MustHaveUser(r.Context()))
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Reports.List(r.Context(), MustHaveUser(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, list)
}

func (s *Server) reportStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Reports.Stats(r.Context(), MustHaveUser(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, stats)
}

func (s *Server) availableTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.deps.Reports.AvailableTypes(r.Context(), MustHaveUser(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, types)
}

func (s *Server) createReport(w http.ResponseWriter, r *http.Request) {
	var req reports.CreateReportRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	report, err := s.deps.Reports.Create(r.Context(), MustHaveUser(r.Context()), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, report)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Reports.Get(r.Context(), MustHaveUser(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, report)
}

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: multipart field \"file\" is required", errBadRequest))
		return
	}
	defer file.Close()

	report, err := s.deps.Reports.AddFile(r.Context(), MustHaveUser(r.Context()), chi.URLParam(r, "id"), reports.FileUpload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, report)
}

func (s *Server) startResearch(w http.ResponseWriter, r *http.Request) {
	started, err := s.deps.Reports.StartResearch(r.Context(), MustHaveUser(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, started)
}

func (s *Server) trackReport(w http.ResponseWriter, r *http.Request) {
	taskID, err := s.deps.Reports.Track(r.Context(), MustHaveUser(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"task_id": taskID})
}

func (s *Server) cancelResearch(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Reports.Cancel(r.Context(), MustHaveUser(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"status": "cancel requested"})
}

func (s *Server) reportProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.deps.Reports.Progress(r.Context(), MustHaveUser(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, progress)
}

func (s *Server) generateDocument(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Reports.GenerateDocument(r.Context(), MustHaveUser(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, report)
}

type documentURLRequest struct {
	URL string `json:"url"`
}

func (s *Server) setDocumentURL(w http.ResponseWriter, r *http.Request) {
	var req documentURLRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	report, err := s.deps.Reports.SetDocumentURL(r.Context(), MustHaveUser(r.Context()), chi.URLParam(r, "id"), req.URL)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, report)
}
