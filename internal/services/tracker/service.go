package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"deepreport/internal/metrics"
	"deepreport/internal/models"
	"deepreport/internal/research"
	"deepreport/internal/store"
)

type activeTask struct {
	taskID   string
	task     *Task
	finished chan struct{}
}

// Service tracks research jobs for reports and writes each terminal outcome into
// the report exactly once.
type Service struct {
	db        *gorm.DB
	ctx       context.Context
	reports   ReportWriter
	research  Researcher
	publisher Publisher
	opts      PollOptions

	taskStore map[string]*TrackingProgress
	active    map[string]*activeTask
	taskMu    sync.RWMutex
}

func NewService(ctx context.Context, db *gorm.DB, reports ReportWriter, researcher Researcher, publisher Publisher, opts PollOptions) *Service {
	return &Service{
		db:        db,
		ctx:       ctx,
		reports:   reports,
		research:  researcher,
		publisher: publisher,
		opts:      opts.withDefaults(),
		taskStore: make(map[string]*TrackingProgress),
		active:    make(map[string]*activeTask),
	}
}

// StartTracking begins polling the research job of a researching report and
// returns the tracking task id.
func (s *Service) StartTracking(reportID string) (string, error) {
	report, err := s.reports.Get(s.ctx, reportID)
	if err != nil {
		return "", fmt.Errorf("failed to load report: %w", err)
	}
	if report.Status != models.ReportStatusResearching || report.OpenAIJobID == "" {
		return "", fmt.Errorf("%w: report %s is %s", ErrNotResearching, reportID, report.Status)
	}

	s.taskMu.Lock()
	if existing, ok := s.active[reportID]; ok && !existing.done() {
		s.taskMu.Unlock()
		return "", ErrAlreadyTracking
	}

	taskID := uuid.New().String()
	progress := &TrackingProgress{
		TaskID:    taskID,
		ReportID:  reportID,
		JobID:     report.OpenAIJobID,
		Status:    TaskStatusStarting,
		Messages:  []string{fmt.Sprintf("Tracking research job %s...", report.OpenAIJobID)},
		StartedAt: time.Now().Format(time.RFC3339),
	}

	row := &models.TaskProgress{
		ID:       taskID,
		TaskType: models.TaskTypeResearchTracking,
		ReportID: reportID,
		Status:   TaskStatusStarting,
		Messages: marshalMessages(progress.Messages),
	}
	if err := s.db.WithContext(s.ctx).Create(row).Error; err != nil {
		s.taskMu.Unlock()
		return "", fmt.Errorf("failed to create task record: %w", err)
	}

	s.taskStore[taskID] = progress

	task := NewTask(s.research, report.OpenAIJobID, s.opts)
	at := &activeTask{taskID: taskID, task: task, finished: make(chan struct{})}

	var shapeOnce sync.Once
	onUpdate := func(attempt int, job *research.Job) {
		defer func() {
			if r := recover(); r != nil {
				zap.S().Named("tracker").Errorw("panic in tracking update", "task_id", taskID, "panic", r)
			}
		}()
		if job.Shape != "" && job.Shape != research.ShapeNone {
			shapeOnce.Do(func() {
				zap.S().Named("tracker").Infow("research output shape detected", "report_id", reportID, "job_id", job.ID, "shape", job.Shape)
			})
		}
		s.recordAttempt(taskID, attempt, job)
	}

	if err := task.Start(s.ctx, onUpdate); err != nil {
		delete(s.taskStore, taskID)
		s.taskMu.Unlock()
		return "", err
	}
	s.active[reportID] = at
	metrics.SetActiveTrackers(s.liveCountLocked())
	s.taskMu.Unlock()

	go s.awaitTask(reportID, at)

	zap.S().Named("tracker").Infow("tracking started", "report_id", reportID, "task_id", taskID, "job_id", report.OpenAIJobID)
	s.emitEvent(taskID)
	return taskID, nil
}

// StopTracking stops polling for a report and waits for the task to wind down.
// The report itself is not changed.
func (s *Service) StopTracking(reportID string) error {
	s.taskMu.RLock()
	at, ok := s.active[reportID]
	s.taskMu.RUnlock()
	if !ok || at.done() {
		return ErrNotTracking
	}

	at.task.Stop()
	<-at.finished
	return nil
}

// Wait blocks until tracking for reportID has finished or ctx is done. It
// returns at once when the last run for reportID has already finished.
func (s *Service) Wait(ctx context.Context, reportID string) error {
	s.taskMu.RLock()
	at, ok := s.active[reportID]
	s.taskMu.RUnlock()
	if !ok {
		return ErrNotTracking
	}

	select {
	case <-at.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelResearch asks the backend to cancel the report's job. Tracking keeps
// running until the backend reports the job as cancelled.
func (s *Service) CancelResearch(ctx context.Context, reportID string) error {
	report, err := s.reports.Get(ctx, reportID)
	if err != nil {
		return fmt.Errorf("failed to load report: %w", err)
	}
	if report.Status != models.ReportStatusResearching || report.OpenAIJobID == "" {
		return fmt.Errorf("%w: report %s is %s", ErrNotResearching, reportID, report.Status)
	}
	if err := s.research.Cancel(ctx, report.OpenAIJobID); err != nil {
		return err
	}
	s.appendMessageForReport(reportID, "Cancellation requested")
	return nil
}

// ResumeAll starts tracking for every researching report without a live task.
func (s *Service) ResumeAll(ctx context.Context) (int, error) {
	reports, err := s.reports.List(ctx, &store.ReportQueryFilter{Status: models.ReportStatusResearching})
	if err != nil {
		return 0, fmt.Errorf("failed to list researching reports: %w", err)
	}

	started := 0
	for _, r := range reports {
		if r.OpenAIJobID == "" {
			continue
		}
		if _, err := s.StartTracking(r.ID); err != nil {
			if !errors.Is(err, ErrAlreadyTracking) {
				zap.S().Named("tracker").Warnw("failed to resume tracking", "report_id", r.ID, "error", err)
			}
			continue
		}
		started++
	}
	return started, nil
}

// GetProgress returns the progress of a task, from memory or from the database.
func (s *Service) GetProgress(taskID string) (*TrackingProgress, error) {
	s.taskMu.RLock()
	progress, exists := s.taskStore[taskID]
	if exists {
		snapshot := *progress
		snapshot.Messages = append([]string(nil), progress.Messages...)
		s.taskMu.RUnlock()
		return &snapshot, nil
	}
	s.taskMu.RUnlock()

	var row models.TaskProgress
	if err := s.db.WithContext(s.ctx).Where("id = ?", taskID).First(&row).Error; err != nil {
		return nil, fmt.Errorf("task not found: %w", err)
	}
	return progressFromRow(&row), nil
}

// ReportProgress returns the latest tracking progress recorded for a report.
func (s *Service) ReportProgress(reportID string) (*TrackingProgress, error) {
	s.taskMu.RLock()
	at, ok := s.active[reportID]
	s.taskMu.RUnlock()
	if ok {
		return s.GetProgress(at.taskID)
	}

	var row models.TaskProgress
	err := s.db.WithContext(s.ctx).
		Where("report_id = ? AND task_type = ?", reportID, models.TaskTypeResearchTracking).
		Order("created_at DESC").
		First(&row).Error
	if err != nil {
		return nil, fmt.Errorf("task not found: %w", err)
	}
	return progressFromRow(&row), nil
}

// ActiveReports lists the reports with a live tracking task.
func (s *Service) ActiveReports() []string {
	s.taskMu.RLock()
	defer s.taskMu.RUnlock()

	ids := make([]string, 0, len(s.active))
	for id, at := range s.active {
		if at.task.Running() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Shutdown stops every live task.
func (s *Service) Shutdown() {
	s.taskMu.RLock()
	reportIDs := make([]string, 0, len(s.active))
	for id := range s.active {
		reportIDs = append(reportIDs, id)
	}
	s.taskMu.RUnlock()

	for _, id := range reportIDs {
		_ = s.StopTracking(id)
	}
}

// CleanupProgress deletes finished task rows older than the cutoff.
func (s *Service) CleanupProgress(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := s.db.WithContext(ctx).
		Where("task_type = ? AND status IN ? AND updated_at < ?",
			models.TaskTypeResearchTracking, []string{TaskStatusCompleted, TaskStatusError}, cutoff).
		Delete(&models.TaskProgress{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clean up task progress: %w", res.Error)
	}

	s.taskMu.Lock()
	for id, p := range s.taskStore {
		if p.CompletedAt != 0 && time.Unix(p.CompletedAt, 0).Before(cutoff) {
			delete(s.taskStore, id)
		}
	}
	for reportID, at := range s.active {
		if _, kept := s.taskStore[at.taskID]; !kept && at.done() {
			delete(s.active, reportID)
		}
	}
	s.taskMu.Unlock()

	return res.RowsAffected, nil
}

func (s *Service) awaitTask(reportID string, at *activeTask) {
	// The entry stays in active so Wait can still observe the finished run.
	// StartTracking replaces it and CleanupProgress drops it.
	defer func() {
		s.taskMu.Lock()
		close(at.finished)
		metrics.SetActiveTrackers(s.liveCountLocked())
		s.taskMu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			zap.S().Named("tracker").Errorw("panic in tracking task", "report_id", reportID, "task_id", at.taskID, "panic", r)
			s.updateProgress(at.taskID, TaskStatusError, -1, fmt.Sprintf("Tracking crashed: %v", r))
		}
	}()

	<-at.task.Done()
	job, err := at.task.Result()
	s.finish(at.taskID, reportID, job, err)
}

// finish is the only place a report is written. It runs once per task run.
func (s *Service) finish(taskID, reportID string, job *research.Job, pollErr error) {
	logger := zap.S().Named("tracker")
	result := &TrackingResult{}

	var outcome *store.ResearchOutcome
	var failed *JobFailedError
	var timeout *PollingTimeoutError

	switch {
	case pollErr == nil:
		result.Outcome = "completed"
		o := store.ResearchOutcome{Status: models.ReportStatusCompleted}
		if job != nil && job.Results != nil {
			o.Report = job.Results.Report
			o.Sources = toModelSources(job.Results.Sources)
		}
		result.Sources = len(o.Sources)
		outcome = &o
	case errors.As(pollErr, &failed):
		result.Outcome = "failed"
		result.Error = failed.Message
		outcome = &store.ResearchOutcome{Status: models.ReportStatusFailed, ErrorMessage: failed.Message}
	case errors.Is(pollErr, ErrJobCancelled):
		result.Outcome = "cancelled"
		result.Error = pollErr.Error()
	case errors.As(pollErr, &timeout):
		result.Outcome = "timeout"
		result.Error = describe(pollErr)
	case errors.Is(pollErr, context.Canceled):
		result.Outcome = "stopped"
		result.Error = "Tracking stopped"
	default:
		result.Outcome = "error"
		result.Error = pollErr.Error()
	}

	metrics.IncreaseTrackingOutcome(result.Outcome)

	if outcome != nil {
		err := retryWithBackoff(taskID, func() error {
			return s.reports.ApplyResearchResult(context.WithoutCancel(s.ctx), reportID, *outcome)
		}, writeAttempts, s.appendMessage)
		if err != nil {
			logger.Errorw("failed to write research result", "report_id", reportID, "task_id", taskID, "error", err)
			result.Error = fmt.Sprintf("failed to save research result: %v", err)
			s.complete(taskID, TaskStatusError, result, "✗ "+result.Error)
			return
		}
		result.ReportWritten = true
	}

	switch result.Outcome {
	case "completed":
		logger.Infow("research completed", "report_id", reportID, "task_id", taskID, "sources", result.Sources)
		s.complete(taskID, TaskStatusCompleted, result, fmt.Sprintf("✓ Research completed with %d sources", result.Sources))
	case "failed":
		logger.Warnw("research failed", "report_id", reportID, "task_id", taskID, "error", result.Error)
		s.complete(taskID, TaskStatusError, result, "✗ Research failed: "+result.Error)
	default:
		logger.Warnw("tracking ended without result", "report_id", reportID, "task_id", taskID, "outcome", result.Outcome, "error", result.Error)
		s.complete(taskID, TaskStatusError, result, "✗ "+result.Error)
	}
}

func (s *Service) recordAttempt(taskID string, attempt int, job *research.Job) {
	progress := attempt * 100 / s.opts.MaxAttempts
	if progress > maxRunningProgress {
		progress = maxRunningProgress
	}

	s.taskMu.Lock()
	if p, ok := s.taskStore[taskID]; ok {
		p.Attempts = attempt
		p.JobStatus = job.Status
	}
	s.taskMu.Unlock()

	s.updateProgress(taskID, TaskStatusRunning, progress,
		fmt.Sprintf("Attempt %d/%d: research %s", attempt, s.opts.MaxAttempts, job.Status))
}

func (s *Service) complete(taskID, status string, result *TrackingResult, message string) {
	s.taskMu.Lock()
	if p, ok := s.taskStore[taskID]; ok {
		p.Result = result
		p.CompletedAt = time.Now().Unix()
	}
	s.taskMu.Unlock()

	progress := -1
	if status == TaskStatusCompleted {
		progress = 100
	}

	if err := s.saveResult(taskID, result); err != nil {
		zap.S().Named("tracker").Warnw("failed to persist task result", "task_id", taskID, "error", err)
	}

	s.updateProgress(taskID, status, progress, message)
}

func (s *Service) saveResult(taskID string, result *TrackingResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}
	return s.db.WithContext(context.WithoutCancel(s.ctx)).Model(&models.TaskProgress{}).
		Where("id = ?", taskID).
		Update("results", string(resultJSON)).Error
}

// updateProgress records status and message in memory and in the task row, then
// publishes the new state. A negative progress keeps the current value.
func (s *Service) updateProgress(taskID, status string, progress int, message string) {
	s.taskMu.Lock()
	p, exists := s.taskStore[taskID]
	if exists {
		p.Status = status
		if progress >= 0 {
			p.Progress = progress
		}
		p.Messages = appendBounded(p.Messages, message)
		progress = p.Progress
	}
	s.taskMu.Unlock()
	if !exists {
		return
	}

	db := s.db.WithContext(context.WithoutCancel(s.ctx))
	var row models.TaskProgress
	if err := db.Where("id = ?", taskID).First(&row).Error; err == nil {
		row.Status = status
		row.Progress = progress
		row.Messages = marshalMessages(appendBounded(unmarshalMessages(row.Messages), message))
		if err := db.Save(&row).Error; err != nil {
			zap.S().Named("tracker").Warnw("failed to persist task progress", "task_id", taskID, "error", err)
		}
	}

	s.emitEvent(taskID)
}

func (s *Service) appendMessage(taskID, message string) {
	s.updateProgressMessage(taskID, message)
}

func (s *Service) appendMessageForReport(reportID, message string) {
	s.taskMu.RLock()
	at, ok := s.active[reportID]
	s.taskMu.RUnlock()
	if ok {
		s.updateProgressMessage(at.taskID, message)
	}
}

func (s *Service) updateProgressMessage(taskID, message string) {
	s.taskMu.RLock()
	p, ok := s.taskStore[taskID]
	var status string
	if ok {
		status = p.Status
	}
	s.taskMu.RUnlock()
	if ok {
		s.updateProgress(taskID, status, -1, message)
	}
}

func (s *Service) emitEvent(taskID string) {
	if s.publisher == nil {
		return
	}

	s.taskMu.RLock()
	progress, exists := s.taskStore[taskID]
	if !exists {
		s.taskMu.RUnlock()
		return
	}
	payload := map[string]interface{}{
		"task_id":   taskID,
		"report_id": progress.ReportID,
		"status":    progress.Status,
		"progress":  progress.Progress,
		"attempts":  progress.Attempts,
		"messages":  append([]string(nil), progress.Messages...),
	}
	if len(progress.Messages) > 0 {
		payload["message"] = progress.Messages[len(progress.Messages)-1]
	}
	if progress.JobStatus != "" {
		payload["job_status"] = progress.JobStatus
	}
	if progress.Result != nil {
		result := *progress.Result
		payload["result"] = &result
	}
	if progress.CompletedAt != 0 {
		payload["completed_at"] = progress.CompletedAt
	}
	reportID := progress.ReportID
	s.taskMu.RUnlock()

	s.publisher.Publish(EventTopic(reportID), payload)
}

func (s *Service) liveCountLocked() int {
	n := 0
	for _, at := range s.active {
		if !at.done() {
			n++
		}
	}
	return n
}

func (at *activeTask) done() bool {
	select {
	case <-at.finished:
		return true
	default:
		return false
	}
}

func progressFromRow(row *models.TaskProgress) *TrackingProgress {
	progress := &TrackingProgress{
		TaskID:   row.ID,
		ReportID: row.ReportID,
		Status:   row.Status,
		Progress: row.Progress,
		Messages: unmarshalMessages(row.Messages),
	}
	if row.Results != "" {
		var result TrackingResult
		if err := json.Unmarshal([]byte(row.Results), &result); err == nil {
			progress.Result = &result
		}
	}
	return progress
}

func toModelSources(sources []research.Source) []models.Source {
	out := make([]models.Source, 0, len(sources))
	for _, src := range sources {
		out = append(out, models.Source{URL: src.URL, Title: src.Title, Snippet: src.Snippet})
	}
	return out
}

func appendBounded(messages []string, message string) []string {
	messages = append(messages, message)
	if len(messages) > maxMessages {
		messages = messages[len(messages)-maxMessages:]
	}
	return messages
}

func marshalMessages(messages []string) string {
	data, _ := json.Marshal(messages)
	return string(data)
}

func unmarshalMessages(messagesJSON string) []string {
	if messagesJSON == "" {
		return []string{}
	}
	var messages []string
	if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
		return []string{}
	}
	return messages
}
