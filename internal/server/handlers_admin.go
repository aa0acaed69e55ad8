package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"deepreport/internal/services/admin"
	"deepreport/internal/services/scheduler"
)

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Admin.ListUsers(r.Context(), MustHaveUser(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, users)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req admin.CreateUserRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	user, err := s.deps.Admin.CreateUser(r.Context(), MustHaveUser(r.Context()), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, user)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var req admin.UpdateUserRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	user, err := s.deps.Admin.UpdateUser(r.Context(), MustHaveUser(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, user)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.DeleteUser(r.Context(), MustHaveUser(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func (s *Server) setRole(w http.ResponseWriter, r *http.Request) {
	var req admin.SetRoleRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	user, err := s.deps.Admin.SetRole(r.Context(), MustHaveUser(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, user)
}

func (s *Server) listReportTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.deps.Admin.ListReportTypes(r.Context(), MustHaveUser(r.Context()))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, types)
}

func (s *Server) createReportType(w http.ResponseWriter, r *http.Request) {
	var req admin.ReportTypeRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	rt, err := s.deps.Admin.CreateReportType(r.Context(), MustHaveUser(r.Context()), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, rt)
}

func (s *Server) updateReportType(w http.ResponseWriter, r *http.Request) {
	var req admin.ReportTypeRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	rt, err := s.deps.Admin.UpdateReportType(r.Context(), MustHaveUser(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, rt)
}

func (s *Server) deleteReportType(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.DeleteReportType(r.Context(), MustHaveUser(r.Context()), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func (s *Server) toggleReportType(w http.ResponseWriter, r *http.Request) {
	rt, err := s.deps.Admin.ToggleReportType(r.Context(), MustHaveUser(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, rt)
}

func (s *Server) assignReportType(w http.ResponseWriter, r *http.Request) {
	var req admin.AssignRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	rt, err := s.deps.Admin.AssignReportType(r.Context(), MustHaveUser(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, rt)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		render.JSON(w, r, []scheduler.JobListResponse{})
		return
	}
	jobs, err := s.deps.Scheduler.ListJobs()
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, jobs)
}

func (s *Server) upsertJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		renderError(w, r, http.StatusServiceUnavailable, "scheduler is not running")
		return
	}

	var req scheduler.UpsertJobRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.check(req); err != nil {
		respondError(w, r, err)
		return
	}

	id, err := s.deps.Scheduler.UpsertJob(req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"id": id})
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		renderError(w, r, http.StatusServiceUnavailable, "scheduler is not running")
		return
	}
	if err := s.deps.Scheduler.DeleteJob(chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func (s *Server) runJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		renderError(w, r, http.StatusServiceUnavailable, "scheduler is not running")
		return
	}
	if err := s.deps.Scheduler.RunJob(chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]string{"status": "done"})
}
