package tracker

import (
	"context"

	"deepreport/internal/models"
	"deepreport/internal/research"
	"deepreport/internal/store"
)

const (
	TaskStatusStarting  = "starting"
	TaskStatusRunning   = "running"
	TaskStatusCompleted = "completed"
	TaskStatusError     = "error"

	// progress never reaches 100 until the report is written
	maxRunningProgress = 95
	maxMessages        = 500
	writeAttempts      = 3
)

// Researcher is the research backend as seen by the tracker.
type Researcher interface {
	StatusChecker
	Cancel(ctx context.Context, jobID string) error
}

// ReportWriter is the slice of the report store the tracker needs.
type ReportWriter interface {
	Get(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context, filter *store.ReportQueryFilter) ([]models.Report, error)
	ApplyResearchResult(ctx context.Context, id string, outcome store.ResearchOutcome) error
}

// Publisher delivers progress events to live listeners.
type Publisher interface {
	Publish(topic string, payload interface{})
}

// TrackingProgress is the state of one tracking task.
type TrackingProgress struct {
	TaskID      string          `json:"task_id"`
	ReportID    string          `json:"report_id"`
	JobID       string          `json:"job_id"`
	Status      string          `json:"status"`   // starting, running, completed, error
	Progress    int             `json:"progress"` // 0-100
	Attempts    int             `json:"attempts"`
	JobStatus   research.Status `json:"job_status,omitempty"`
	Messages    []string        `json:"messages"`
	Result      *TrackingResult `json:"result,omitempty"`
	StartedAt   string          `json:"started_at,omitempty"`
	CompletedAt int64           `json:"completed_at,omitempty"`
}

// TrackingResult summarizes how tracking ended.
type TrackingResult struct {
	Outcome       string `json:"outcome"` // completed, failed, cancelled, timeout, error, stopped
	ReportWritten bool   `json:"report_written"`
	Sources       int    `json:"sources,omitempty"`
	Error         string `json:"error,omitempty"`
}

func EventTopic(reportID string) string {
	return "research:" + reportID
}
