package reports

import (
	"context"
	"errors"
	"io"

	"deepreport/internal/docs"
	"deepreport/internal/services/tracker"
	"deepreport/internal/storage"
)

const (
	maxURLs  = 5
	maxFiles = 5
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrForbidden             = errors.New("forbidden")
	ErrReportTypeUnavailable = errors.New("report type is not available")
	ErrTooManyFiles          = errors.New("a report can have at most 5 files")
	ErrStorageUnavailable    = errors.New("file storage is not configured")
	ErrNotReady              = errors.New("report has no generated content yet")
)

// Submitter starts background research jobs and cancels the ones no report
// ended up owning.
type Submitter interface {
	Submit(ctx context.Context, prompt, systemMessage string) (string, error)
	Cancel(ctx context.Context, jobID string) error
}

// Tracker follows submitted jobs until they finish.
type Tracker interface {
	StartTracking(reportID string) (string, error)
	CancelResearch(ctx context.Context, reportID string) error
	ReportProgress(reportID string) (*tracker.TrackingProgress, error)
}

// FileStore keeps uploaded report documents.
type FileStore interface {
	Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) (*storage.Object, error)
	PublicURL(path string) string
}

// DocumentCreator publishes report content as a document owned by userID.
type DocumentCreator interface {
	CreateDocument(ctx context.Context, userID, title, content string) (*docs.Document, error)
}

type CreateReportRequest struct {
	ReportName string   `json:"report_name" validate:"required,max=200"`
	ClientName string   `json:"client_name" validate:"required,max=200"`
	ReportType string   `json:"report_type" validate:"required"`
	Transcript string   `json:"transcript"`
	URLs       []string `json:"urls" validate:"max=5,dive,url"`
}

type FileUpload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ResearchStarted is returned once a job is submitted and tracked.
type ResearchStarted struct {
	ReportID string `json:"report_id"`
	JobID    string `json:"job_id"`
	TaskID   string `json:"task_id"`
}
