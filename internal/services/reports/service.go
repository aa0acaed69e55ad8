package reports

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"deepreport/internal/models"
	"deepreport/internal/research"
	"deepreport/internal/services/tracker"
	"deepreport/internal/store"
	"deepreport/internal/validation"
)

// Service is the report workflow: draft, research, document.
type Service struct {
	store     store.Store
	submitter Submitter
	tracker   Tracker
	files     FileStore
	documents DocumentCreator
	validate  *validator.Validate
	log       *zap.SugaredLogger

	submitMu   sync.Mutex
	submitting map[string]struct{}
}

// NewService wires the workflow. files and documents may be nil when those backends are not configured.
func NewService(s store.Store, submitter Submitter, t Tracker, files FileStore, documents DocumentCreator) *Service {
	return &Service{
		store:     s,
		submitter: submitter,
		tracker:   t,
		files:     files,
		documents: documents,
		validate:  validation.New(),
		log:       zap.S().Named("reports"),

		submitting: make(map[string]struct{}),
	}
}

func (s *Service) List(ctx context.Context, caller *models.User) ([]models.Report, error) {
	return s.store.Report().List(ctx, &store.ReportQueryFilter{UserID: caller.ID})
}

func (s *Service) Stats(ctx context.Context, caller *models.User) (map[string]int64, error) {
	return s.store.Report().CountByStatus(ctx, caller.ID)
}

// Get returns a report visible to the caller. Admins can read every report.
func (s *Service) Get(ctx context.Context, caller *models.User, id string) (*models.Report, error) {
	report, err := s.store.Report().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.UserID != caller.ID && !caller.IsAdmin() {
		return nil, store.ErrRecordNotFound
	}
	return report, nil
}

// AvailableTypes lists the report types the caller may choose from.
func (s *Service) AvailableTypes(ctx context.Context, caller *models.User) ([]models.ReportType, error) {
	types, err := s.store.ReportType().List(ctx, models.ReportTypeActive)
	if err != nil {
		return nil, err
	}
	available := make([]models.ReportType, 0, len(types))
	for i := range types {
		if types[i].AvailableTo(caller.ID) {
			available = append(available, types[i])
		}
	}
	return available, nil
}

// Create stores a new draft report.
func (s *Service) Create(ctx context.Context, caller *models.User, req CreateReportRequest) (*models.Report, error) {
	req.ReportName = strings.TrimSpace(req.ReportName)
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.URLs = compact(req.URLs)

	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, invalid(err)
	}

	rt, err := s.store.ReportType().GetByName(ctx, req.ReportType)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrReportTypeUnavailable, req.ReportType)
		}
		return nil, err
	}
	if !rt.AvailableTo(caller.ID) {
		return nil, fmt.Errorf("%w: %s", ErrReportTypeUnavailable, req.ReportType)
	}

	report, err := s.store.Report().Create(ctx, models.Report{
		UserID:     caller.ID,
		ReportName: req.ReportName,
		ClientName: req.ClientName,
		ReportType: rt.Name,
		Transcript: req.Transcript,
		URLs:       req.URLs,
	})
	if err != nil {
		return nil, err
	}

	s.log.Infow("report created", "report_id", report.ID, "user_id", caller.ID, "type", rt.Name)
	return report, nil
}

// AddFile uploads a document and attaches it to a report that has not started research.
func (s *Service) AddFile(ctx context.Context, caller *models.User, id string, upload FileUpload) (*models.Report, error) {
	if s.files == nil {
		return nil, ErrStorageUnavailable
	}

	report, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if report.Status == models.ReportStatusResearching || report.Status == models.ReportStatusCompleted {
		return nil, fmt.Errorf("%w: cannot add files to a %s report", store.ErrInvalidTransition, report.Status)
	}
	if len(report.Files) >= maxFiles {
		return nil, ErrTooManyFiles
	}

	name := path.Base(strings.ReplaceAll(upload.Name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return nil, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}

	objectPath := fmt.Sprintf("reports/%s/%s-%s", report.ID, uuid.NewString(), name)
	obj, err := s.files.Upload(ctx, objectPath, upload.Body, upload.Size, upload.ContentType)
	if err != nil {
		return nil, err
	}

	return s.store.Report().AddFile(ctx, report.ID, models.FileRef{
		Name: name,
		Path: obj.Path,
		URL:  s.files.PublicURL(obj.Path),
	})
}

// StartResearch submits the report to the research backend and starts tracking it.
// A failed report may be restarted; a submission error leaves a draft in place with the message recorded.
func (s *Service) StartResearch(ctx context.Context, caller *models.User, id string) (*ResearchStarted, error) {
	report, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if !store.CanTransition(report.Status, models.ReportStatusResearching) {
		return nil, fmt.Errorf("%w: cannot start research on a %s report", store.ErrInvalidTransition, report.Status)
	}
	if !s.claimSubmission(report.ID) {
		return nil, fmt.Errorf("%w: research is already being submitted", store.ErrInvalidTransition)
	}
	defer s.releaseSubmission(report.ID)

	systemMessage := ""
	if rt, err := s.store.ReportType().GetByName(ctx, report.ReportType); err == nil {
		systemMessage = rt.Prompt
	} else if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	prompt := research.BuildPrompt(research.PromptInput{
		ReportType: report.ReportType,
		ClientName: report.ClientName,
		Transcript: report.Transcript,
		URLs:       report.URLs,
		Documents:  documentRefs(report.Files),
	})

	jobID, err := s.submitter.Submit(ctx, prompt, systemMessage)
	if err != nil {
		if recErr := s.store.Report().RecordSubmissionError(ctx, report.ID, err.Error()); recErr != nil {
			s.log.Warnw("failed to record submission error", "report_id", report.ID, "error", recErr)
		}
		return nil, err
	}

	if err := s.store.Report().StartResearch(ctx, report.ID, jobID); err != nil {
		// the report moved on elsewhere; nothing would ever track this job
		if cancelErr := s.submitter.Cancel(context.WithoutCancel(ctx), jobID); cancelErr != nil {
			s.log.Warnw("failed to cancel orphaned research job", "report_id", report.ID, "job_id", jobID, "error", cancelErr)
		}
		return nil, err
	}

	taskID, err := s.tracker.StartTracking(report.ID)
	if err != nil && !errors.Is(err, tracker.ErrAlreadyTracking) {
		// the job is running; the resume job picks the report up later
		s.log.Errorw("failed to start tracking", "report_id", report.ID, "job_id", jobID, "error", err)
		return nil, err
	}

	s.log.Infow("research started", "report_id", report.ID, "job_id", jobID, "task_id", taskID)
	return &ResearchStarted{ReportID: report.ID, JobID: jobID, TaskID: taskID}, nil
}

func (s *Service) claimSubmission(id string) bool {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()
	if _, busy := s.submitting[id]; busy {
		return false
	}
	s.submitting[id] = struct{}{}
	return true
}

func (s *Service) releaseSubmission(id string) {
	s.submitMu.Lock()
	delete(s.submitting, id)
	s.submitMu.Unlock()
}

// Track resumes tracking a report that is already researching.
func (s *Service) Track(ctx context.Context, caller *models.User, id string) (string, error) {
	report, err := s.owned(ctx, caller, id)
	if err != nil {
		return "", err
	}
	return s.tracker.StartTracking(report.ID)
}

func (s *Service) Cancel(ctx context.Context, caller *models.User, id string) error {
	report, err := s.owned(ctx, caller, id)
	if err != nil {
		return err
	}
	return s.tracker.CancelResearch(ctx, report.ID)
}

func (s *Service) Progress(ctx context.Context, caller *models.User, id string) (*tracker.TrackingProgress, error) {
	report, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return s.tracker.ReportProgress(report.ID)
}

// GenerateDocument publishes a completed report to Google Docs and stores the link.
func (s *Service) GenerateDocument(ctx context.Context, caller *models.User, id string) (*models.Report, error) {
	report, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if report.Status != models.ReportStatusCompleted || strings.TrimSpace(report.GeneratedReport) == "" {
		return nil, ErrNotReady
	}
	if s.documents == nil {
		return nil, errors.New("document generation is not configured")
	}

	title := report.ReportName
	if report.ClientName != "" {
		title = fmt.Sprintf("%s - %s", report.ReportName, report.ClientName)
	}

	doc, err := s.documents.CreateDocument(ctx, caller.ID, title, report.GeneratedReport)
	if err != nil {
		return nil, err
	}

	if err := s.store.Report().SetGoogleDocsURL(ctx, report.ID, doc.WebViewLink); err != nil {
		return nil, err
	}
	report.GoogleDocsURL = doc.WebViewLink

	s.log.Infow("document created", "report_id", report.ID, "document_id", doc.DocumentID)
	return report, nil
}

// SetDocumentURL records a document link by hand. The link cannot be cleared.
func (s *Service) SetDocumentURL(ctx context.Context, caller *models.User, id, url string) (*models.Report, error) {
	if err := s.validate.Var(url, "required,url"); err != nil {
		return nil, invalid(err)
	}

	report, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.Report().SetGoogleDocsURL(ctx, report.ID, url); err != nil {
		return nil, err
	}
	report.GoogleDocsURL = url
	return report, nil
}

// owned loads a report the caller may modify.
func (s *Service) owned(ctx context.Context, caller *models.User, id string) (*models.Report, error) {
	report, err := s.store.Report().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.UserID != caller.ID {
		if caller.IsAdmin() {
			return nil, ErrForbidden
		}
		return nil, store.ErrRecordNotFound
	}
	return report, nil
}

func documentRefs(files []models.FileRef) []string {
	refs := make([]string, 0, len(files))
	for _, f := range files {
		switch {
		case f.URL != "":
			refs = append(refs, fmt.Sprintf("%s (%s)", f.Name, f.URL))
		default:
			refs = append(refs, f.Name)
		}
	}
	return refs
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func invalid(err error) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, validation.Describe(err))
}
