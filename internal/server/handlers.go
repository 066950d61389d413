package server

import (
	"errors"
	"net/http"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/omuapps/obssync/internal/permission"
	"github.com/omuapps/obssync/internal/reconcile"
	"github.com/omuapps/obssync/pkg/types"
)

// StatusResponse answers GET /obssync/status.
type StatusResponse struct {
	Running bool          `json:"running"`
	Last    *types.Report `json:"last,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{}
	if s.deps.Plugin != nil {
		resp.Running = s.deps.Plugin.Running()
		last, err := s.deps.Plugin.Last()
		resp.Last = last
		if err != nil {
			resp.Error = err.Error()
		}
	}
	if resp.Last == nil && s.deps.Reports != nil {
		last, err := s.deps.Reports.Last(r.Context())
		switch {
		case err == nil:
			resp.Last = last
		case !errors.Is(err, reconcile.ErrNoReport):
			writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) startReconcile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Plugin == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "reconciliation is not configured")
		return
	}
	if !s.deps.Plugin.Trigger(s.runCtx) {
		writeError(w, http.StatusConflict, ErrCodeBusy, reconcile.ErrBusy.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": true})
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	if s.deps.Previewer == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "reconciliation is not configured")
		return
	}
	report, err := s.deps.Previewer.Preview(r.Context())
	if errors.Is(err, reconcile.ErrBusy) {
		writeError(w, http.StatusConflict, ErrCodeBusy, err.Error())
		return
	}
	if report == nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	// Step failures are listed in the report itself.
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reports == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	ids, err := s.deps.Reports.IDs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "reportID")
	if _, err := ulid.ParseStrict(id); err != nil || s.deps.Reports == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "report not found")
		return
	}
	report, err := s.deps.Reports.Get(r.Context(), id)
	if errors.Is(err, reconcile.ErrNoReport) {
		writeErrorWithDetails(w, http.StatusNotFound, ErrCodeNotFound, "report not found", map[string]any{"id": id})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	var descriptors []permission.Descriptor
	if pattern := r.URL.Query().Get("match"); pattern != "" {
		if !doublestar.ValidatePattern(pattern) {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid match pattern")
			return
		}
		descriptors = s.deps.Registry.Match(pattern)
	} else {
		descriptors = s.deps.Registry.List()
	}
	if descriptors == nil {
		descriptors = []permission.Descriptor{}
	}
	writeJSON(w, http.StatusOK, descriptors)
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.AppConfig == nil {
		writeJSON(w, http.StatusOK, &types.Config{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.AppConfig)
}
