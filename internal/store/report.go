package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"deepreport/internal/models"
)

type Report interface {
	Create(ctx context.Context, report models.Report) (*models.Report, error)
	Get(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context, filter *ReportQueryFilter) ([]models.Report, error)
	CountByStatus(ctx context.Context, userID string) (map[string]int64, error)
	StartResearch(ctx context.Context, id, jobID string) error
	RecordSubmissionError(ctx context.Context, id, message string) error
	ApplyResearchResult(ctx context.Context, id string, outcome ResearchOutcome) error
	SetGoogleDocsURL(ctx context.Context, id, url string) error
	AddFile(ctx context.Context, id string, file models.FileRef) (*models.Report, error)
}

// ReportQueryFilter narrows List. Zero values are ignored.
type ReportQueryFilter struct {
	UserID string
	Status string
}

// ResearchOutcome is the terminal result of a research job as written to the report.
type ResearchOutcome struct {
	Status       string
	Report       string
	Sources      []models.Source
	ErrorMessage string
}

var transitions = map[string][]string{
	models.ReportStatusDraft:       {models.ReportStatusResearching},
	models.ReportStatusResearching: {models.ReportStatusCompleted, models.ReportStatusFailed},
	models.ReportStatusFailed:      {models.ReportStatusResearching},
}

// CanTransition reports whether a report may move from one status to another.
// failed -> researching is the explicit research restart.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type ReportStore struct {
	db *gorm.DB
}

var _ Report = (*ReportStore)(nil)

func NewReportStore(db *gorm.DB) Report {
	return &ReportStore{db: db}
}

func (s *ReportStore) Create(ctx context.Context, report models.Report) (*models.Report, error) {
	report.Status = models.ReportStatusDraft
	if err := s.db.WithContext(ctx).Create(&report).Error; err != nil {
		return nil, translate(err)
	}
	return &report, nil
}

func (s *ReportStore) Get(ctx context.Context, id string) (*models.Report, error) {
	var report models.Report
	if err := s.db.WithContext(ctx).First(&report, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &report, nil
}

func (s *ReportStore) List(ctx context.Context, filter *ReportQueryFilter) ([]models.Report, error) {
	tx := s.db.WithContext(ctx).Order("created_at DESC")
	if filter != nil {
		if filter.UserID != "" {
			tx = tx.Where("user_id = ?", filter.UserID)
		}
		if filter.Status != "" {
			tx = tx.Where("status = ?", filter.Status)
		}
	}

	var reports []models.Report
	if err := tx.Find(&reports).Error; err != nil {
		return nil, translate(err)
	}
	return reports, nil
}

func (s *ReportStore) CountByStatus(ctx context.Context, userID string) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&models.Report{}).
		Select("status, count(*) as count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, translate(err)
	}

	counts := map[string]int64{
		models.ReportStatusDraft:       0,
		models.ReportStatusResearching: 0,
		models.ReportStatusCompleted:   0,
		models.ReportStatusFailed:      0,
	}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// StartResearch moves a draft (or failed) report to researching and records the job id.
func (s *ReportStore) StartResearch(ctx context.Context, id, jobID string) error {
	if jobID == "" {
		return errors.New("job id is required")
	}
	return s.transition(ctx, id, models.ReportStatusResearching, map[string]interface{}{
		"openai_job_id":    jobID,
		"error_message":    "",
		"generated_report": "",
	})
}

// RecordSubmissionError stores why submission failed on a draft or failed
// report. The status is left unchanged.
func (s *ReportStore) RecordSubmissionError(ctx context.Context, id, message string) error {
	res := s.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ? AND status IN ?", id, []string{models.ReportStatusDraft, models.ReportStatusFailed}).
		Updates(map[string]interface{}{
			"error_message": message,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ApplyResearchResult writes the terminal research outcome. Applying the same outcome twice is a no-op.
func (s *ReportStore) ApplyResearchResult(ctx context.Context, id string, outcome ResearchOutcome) error {
	fields := map[string]interface{}{}
	switch outcome.Status {
	case models.ReportStatusCompleted:
		fields["generated_report"] = outcome.Report
		fields["research_sources"] = datatypes.NewJSONSlice(outcome.Sources)
	case models.ReportStatusFailed:
		fields["error_message"] = outcome.ErrorMessage
	default:
		return fmt.Errorf("%w: %q is not a terminal status", ErrInvalidTransition, outcome.Status)
	}
	return s.transition(ctx, id, outcome.Status, fields)
}

// SetGoogleDocsURL records the generated document link. The link can be replaced but never cleared.
func (s *ReportStore) SetGoogleDocsURL(ctx context.Context, id, url string) error {
	if url == "" {
		return errors.New("google docs url cannot be cleared")
	}
	res := s.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"google_docs_url": url,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *ReportStore) AddFile(ctx context.Context, id string, file models.FileRef) (*models.Report, error) {
	report, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	files := append([]models.FileRef(report.Files), file)
	err = s.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"files":      datatypes.NewJSONSlice(files),
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return nil, translate(err)
	}

	report.Files = files
	return report, nil
}

// transition performs a guarded status update: the row changes only if its current
// status may legally move to the target.
func (s *ReportStore) transition(ctx context.Context, id, to string, fields map[string]interface{}) error {
	var from []string
	for status := range transitions {
		if CanTransition(status, to) {
			from = append(from, status)
		}
	}

	fields["status"] = to
	fields["updated_at"] = time.Now()

	res := s.db.WithContext(ctx).Model(&models.Report{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == to && current.IsTerminal() {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
}
