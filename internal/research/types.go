package research

import "time"

// Status is the tracker's view of a research job. Backend values outside
// the four known ones collapse to StatusInProgress.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further transition can happen.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// NormalizeStatus maps a backend status string onto the four-value enum.
func NormalizeStatus(raw string) Status {
	switch s := Status(raw); s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return s
	default:
		return StatusInProgress
	}
}

// Shape identifies how the backend encoded the job output.
type Shape string

const (
	ShapeNone   Shape = "none"
	ShapeTurns  Shape = "turns"
	ShapeString Shape = "string"
)

type Source struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type Results struct {
	Report  string   `json:"report"`
	Sources []Source `json:"sources"`
}

type JobError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Job is a snapshot of one external research job.
type Job struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Results   *Results  `json:"results,omitempty"`
	Error     *JobError `json:"error,omitempty"`
	Shape     Shape     `json:"shape"`
}
