package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"deepreport/internal/models"
)

var (
	ErrUnknownJobType = errors.New("unknown job type")
	ErrInvalidJob     = errors.New("invalid job")
	ErrJobNotFound    = errors.New("job not found")
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Service runs recurring maintenance jobs against the tracker
type Service struct {
	db         *gorm.DB
	ctx        context.Context
	cron       *cron.Cron
	jobs       map[string]cron.EntryID // jobID -> cron entry ID
	jobsMu     sync.RWMutex
	maintainer Maintainer
	log        *zap.SugaredLogger
}

// NewService creates a new scheduler service
func NewService(ctx context.Context, db *gorm.DB, maintainer Maintainer) *Service {
	return &Service{
		db:         db,
		ctx:        ctx,
		cron:       cron.New(cron.WithSeconds()),
		jobs:       make(map[string]cron.EntryID),
		maintainer: maintainer,
		log:        zap.S().Named("scheduler"),
	}
}

// Start loads enabled jobs from the database and starts the cron loop
func (s *Service) Start() error {
	s.cron.Start()

	var jobs []models.ScheduledJob
	if err := s.db.Where("enabled = ?", true).Find(&jobs).Error; err != nil {
		return fmt.Errorf("failed to load scheduled jobs: %w", err)
	}

	for i := range jobs {
		job := &jobs[i]
		if err := s.scheduleJob(job); err != nil {
			s.log.Warnw("failed to schedule job", "name", job.Name, "id", job.ID, "error", err)
			continue
		}
		s.log.Debugw("scheduled job", "name", job.Name, "id", job.ID, "cron", job.Cron)
	}

	s.log.Infof("scheduler started with %d enabled jobs", len(jobs))
	return nil
}

// Stop waits for running jobs and stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.log.Info("scheduler stopped")
	}
}

// ListJobs retrieves all scheduled jobs
func (s *Service) ListJobs() ([]JobListResponse, error) {
	var jobs []models.ScheduledJob
	if err := s.db.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	responses := make([]JobListResponse, len(jobs))
	for i := range jobs {
		responses[i] = toJobListResponse(&jobs[i])
	}
	return responses, nil
}

// UpsertJob creates or updates a scheduled job by name
func (s *Service) UpsertJob(req UpsertJobRequest) (string, error) {
	if req.Name == "" || req.JobType == "" || req.Cron == "" {
		return "", fmt.Errorf("%w: name, job_type, and cron are required", ErrInvalidJob)
	}
	if req.JobType != models.JobTypeResumeTracking && req.JobType != models.JobTypeCleanupProgress {
		return "", fmt.Errorf("%w: %s", ErrUnknownJobType, req.JobType)
	}

	normalized, err := normalizeCron(req.Cron)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return "", fmt.Errorf("%w: invalid timezone %q: %v", ErrInvalidJob, timezone, err)
	}

	payload, err := encodePayload(req.Payload)
	if err != nil {
		return "", err
	}

	var job models.ScheduledJob
	err = s.db.Where("name = ?", req.Name).First(&job).Error
	isNew := errors.Is(err, gorm.ErrRecordNotFound)
	if err != nil && !isNew {
		return "", fmt.Errorf("failed to query job: %w", err)
	}

	job.Name = req.Name
	job.JobType = req.JobType
	job.Cron = normalized
	job.Timezone = timezone
	job.Enabled = req.Enabled
	job.Payload = payload

	schedule, err := cronParser.Parse(cronSpec(&job))
	if err != nil {
		return "", fmt.Errorf("failed to parse cron for next run: %w", err)
	}
	next := schedule.Next(time.Now())
	job.NextRunAt = &next

	if isNew {
		err = s.db.Create(&job).Error
		if err == nil && !job.Enabled {
			// the column default would otherwise override a false value
			err = s.db.Model(&job).Update("enabled", false).Error
		}
	} else {
		err = s.db.Save(&job).Error
	}
	if err != nil {
		return "", fmt.Errorf("failed to save job: %w", err)
	}

	if err := s.rescheduleJob(job.ID); err != nil {
		return "", fmt.Errorf("failed to reschedule job: %w", err)
	}
	return job.ID, nil
}

// DeleteJob removes a scheduled job
func (s *Service) DeleteJob(jobID string) error {
	s.unschedule(jobID)

	if err := s.db.Delete(&models.ScheduledJob{}, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// RunJob executes a job immediately, outside its schedule.
func (s *Service) RunJob(jobID string) error {
	return s.executeJob(jobID)
}

// Scheduled reports whether a job currently has a cron entry.
func (s *Service) Scheduled(jobID string) bool {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	_, ok := s.jobs[jobID]
	return ok
}

func (s *Service) scheduleJob(job *models.ScheduledJob) error {
	s.unschedule(job.ID)
	if !job.Enabled {
		return nil
	}

	jobID := job.ID
	entryID, err := s.cron.AddFunc(cronSpec(job), func() {
		if err := s.executeJob(jobID); err != nil {
			s.log.Errorw("scheduled job failed", "id", jobID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.jobsMu.Lock()
	s.jobs[jobID] = entryID
	s.jobsMu.Unlock()
	return nil
}

func (s *Service) unschedule(jobID string) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if entryID, exists := s.jobs[jobID]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, jobID)
	}
}

// rescheduleJob reloads a job from database and reschedules it
func (s *Service) rescheduleJob(jobID string) error {
	var job models.ScheduledJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.unschedule(jobID)
			return nil
		}
		return fmt.Errorf("failed to load job: %w", err)
	}
	return s.scheduleJob(&job)
}

func (s *Service) executeJob(jobID string) error {
	var job models.ScheduledJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	s.log.Infow("executing scheduled job", "name", job.Name, "type", job.JobType)

	now := time.Now()
	job.LastRunAt = &now
	if schedule, err := cronParser.Parse(cronSpec(&job)); err == nil {
		next := schedule.Next(now)
		job.NextRunAt = &next
	} else {
		s.log.Warnw("failed to parse cron for next run", "error", err)
	}
	if err := s.db.Save(&job).Error; err != nil {
		s.log.Warnw("failed to update job run times", "error", err)
	}

	switch job.JobType {
	case models.JobTypeResumeTracking:
		started, err := s.maintainer.ResumeAll(s.ctx)
		if err != nil {
			return fmt.Errorf("resume tracking: %w", err)
		}
		s.log.Infof("resumed tracking for %d reports", started)
	case models.JobTypeCleanupProgress:
		var payload CleanupPayload
		if job.Payload != "" {
			if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
				return fmt.Errorf("failed to parse job payload: %w", err)
			}
		}
		deleted, err := s.maintainer.CleanupProgress(s.ctx, payload.retention())
		if err != nil {
			return fmt.Errorf("cleanup progress: %w", err)
		}
		s.log.Infof("removed %d finished progress rows", deleted)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownJobType, job.JobType)
	}
	return nil
}

func encodePayload(payload any) (string, error) {
	switch p := payload.(type) {
	case nil:
		return "", nil
	case string:
		return p, nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("failed to marshal payload: %w", err)
		}
		return string(data), nil
	}
}

// cronSpec prefixes the stored expression with its timezone when it is not UTC.
func cronSpec(job *models.ScheduledJob) string {
	if job.Timezone == "" || job.Timezone == "UTC" {
		return job.Cron
	}
	return "CRON_TZ=" + job.Timezone + " " + job.Cron
}

// normalizeCron converts 5-field cron to 6-field format by prepending seconds
// 5-field: "minute hour day month dow"
// 6-field: "second minute hour day month dow" (robfig/cron with WithSeconds)
func normalizeCron(cronExpr string) (string, error) {
	cronExpr = strings.TrimSpace(cronExpr)
	fields := strings.Fields(cronExpr)

	if len(fields) == 6 {
		if _, err := cronParser.Parse(cronExpr); err == nil {
			return cronExpr, nil
		}
	}

	if len(fields) == 5 {
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return "", fmt.Errorf("invalid 5-field cron expression: %w", err)
		}
		return "0 " + cronExpr, nil
	}

	return "", fmt.Errorf("invalid cron expression: expected 5 or 6 fields, got %d", len(fields))
}

func toJobListResponse(job *models.ScheduledJob) JobListResponse {
	resp := JobListResponse{
		ID:        job.ID,
		Name:      job.Name,
		JobType:   job.JobType,
		Cron:      job.Cron,
		Timezone:  job.Timezone,
		Enabled:   job.Enabled,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
	}

	if job.LastRunAt != nil {
		lastRun := job.LastRunAt.Format(time.RFC3339)
		resp.LastRunAt = &lastRun
	}
	if job.NextRunAt != nil {
		nextRun := job.NextRunAt.Format(time.RFC3339)
		resp.NextRun = &nextRun
	}
	return resp
}
