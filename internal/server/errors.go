package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"deepreport/internal/docs"
	"deepreport/internal/googleauth"
	"deepreport/internal/research"
	"deepreport/internal/services/admin"
	"deepreport/internal/services/reports"
	"deepreport/internal/services/scheduler"
	"deepreport/internal/services/tracker"
	"deepreport/internal/store"
)

// ErrResponse is the JSON body of every failed request.
type ErrResponse struct {
	HTTPStatusCode int    `json:"-"`
	Message        string `json:"error"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	_ = render.Render(w, r, &ErrResponse{HTTPStatusCode: status, Message: message})
}

// respondError maps a service error onto its HTTP status.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		zap.S().Named("api_server").Errorw("request failed", "path", r.URL.Path, "error", err)
	}
	renderError(w, r, status, err.Error())
}

func errorStatus(err error) int {
	var (
		submitErr *research.SubmissionError
		checkErr  *research.StatusCheckError
		docsErr   *docs.APIError
	)

	switch {
	case errors.Is(err, store.ErrRecordNotFound), errors.Is(err, scheduler.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, reports.ErrInvalidInput),
		errors.Is(err, admin.ErrInvalidInput),
		errors.Is(err, reports.ErrReportTypeUnavailable),
		errors.Is(err, reports.ErrTooManyFiles),
		errors.Is(err, scheduler.ErrUnknownJobType),
		errors.Is(err, scheduler.ErrInvalidJob),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, reports.ErrForbidden), errors.Is(err, admin.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrDuplicateKey),
		errors.Is(err, reports.ErrNotReady),
		errors.Is(err, tracker.ErrAlreadyTracking),
		errors.Is(err, tracker.ErrNotTracking),
		errors.Is(err, tracker.ErrNotResearching),
		errors.Is(err, googleauth.ErrNotSignedIn):
		return http.StatusConflict
	case errors.As(err, &submitErr), errors.As(err, &checkErr), errors.As(err, &docsErr):
		return http.StatusBadGateway
	case errors.Is(err, reports.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

var errBadRequest = errors.New("bad request")
