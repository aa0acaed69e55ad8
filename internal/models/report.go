package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Report status lifecycle: draft -> researching -> completed | failed.
const (
	ReportStatusDraft       = "draft"
	ReportStatusResearching = "researching"
	ReportStatusCompleted   = "completed"
	ReportStatusFailed      = "failed"
)

// FileRef points at a document already uploaded to object storage.
type FileRef struct {
	Name string `json:"name"`
	Path string `json:"path"`
	URL  string `json:"url"`
}

// Source is a web reference cited by a research report.
type Source struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Report is one user-initiated research request and its outcome.
type Report struct {
	ID              string                       `gorm:"primaryKey" json:"id"`
	UserID          string                       `gorm:"not null;index;column:user_id" json:"user_id"`
	ReportName      string                       `gorm:"not null;column:report_name" json:"report_name"`
	ClientName      string                       `gorm:"not null;column:client_name" json:"client_name"`
	ReportType      string                       `gorm:"column:report_type" json:"report_type"`
	Transcript      string                       `gorm:"type:text" json:"transcript"`
	URLs            datatypes.JSONSlice[string]  `gorm:"column:urls" json:"urls"`
	Files           datatypes.JSONSlice[FileRef] `gorm:"column:files" json:"files"`
	Status          string                       `gorm:"not null;default:draft;index" json:"status"`
	OpenAIJobID     string                       `gorm:"column:openai_job_id;index" json:"openai_job_id"`
	GoogleDocsURL   string                       `gorm:"column:google_docs_url" json:"google_docs_url"`
	GeneratedReport string                       `gorm:"type:text;column:generated_report" json:"generated_report"`
	ResearchSources datatypes.JSONSlice[Source]  `gorm:"column:research_sources" json:"research_sources"`
	ErrorMessage    string                       `gorm:"type:text;column:error_message" json:"error_message"`
	CreatedAt       time.Time                    `json:"created_at"`
	UpdatedAt       time.Time                    `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = ReportStatusDraft
	}
	return nil
}

// TableName specifies the table name for GORM
func (Report) TableName() string {
	return "reports"
}

// IsTerminal reports whether no further research transition is expected.
func (r *Report) IsTerminal() bool {
	return r.Status == ReportStatusCompleted || r.Status == ReportStatusFailed
}
