package scheduler

import (
	"context"
	"time"
)

// defaultRetention is how long finished progress rows are kept when a cleanup job has no payload.
const defaultRetention = 7 * 24 * time.Hour

// Maintainer is the part of the tracker the scheduled jobs drive.
type Maintainer interface {
	ResumeAll(ctx context.Context) (int, error)
	CleanupProgress(ctx context.Context, olderThan time.Duration) (int64, error)
}

// JobListResponse represents a scheduled job in list responses
type JobListResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	JobType   string  `json:"job_type"`
	Cron      string  `json:"cron"`
	Timezone  string  `json:"timezone"`
	Enabled   bool    `json:"enabled"`
	LastRunAt *string `json:"last_run_at"` // ISO 8601 format
	NextRun   *string `json:"next_run"`    // ISO 8601 format
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// UpsertJobRequest represents a request to create or update a scheduled job
type UpsertJobRequest struct {
	Name     string `json:"name" validate:"required"`
	JobType  string `json:"job_type" validate:"required,oneof=resume_tracking cleanup_progress"`
	Cron     string `json:"cron" validate:"required"`
	Timezone string `json:"timezone"`
	Enabled  bool   `json:"enabled"`
	Payload  any    `json:"payload"` // map or JSON string
}

// CleanupPayload configures a cleanup_progress job.
type CleanupPayload struct {
	OlderThanHours int `json:"older_than_hours"`
}

func (p CleanupPayload) retention() time.Duration {
	if p.OlderThanHours <= 0 {
		return defaultRetention
	}
	return time.Duration(p.OlderThanHours) * time.Hour
}
