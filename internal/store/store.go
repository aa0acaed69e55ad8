package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"deepreport/internal/config"
	"deepreport/internal/models"
)

type Store interface {
	Report() Report
	ReportType() ReportType
	User() User
	GoogleToken() GoogleToken
	Seed(ctx context.Context, seed *config.Seed) error
	DB() *gorm.DB
}

type DataStore struct {
	db          *gorm.DB
	report      Report
	reportType  ReportType
	user        User
	googleToken GoogleToken
}

var _ Store = (*DataStore)(nil)

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:          db,
		report:      NewReportStore(db),
		reportType:  NewReportTypeStore(db),
		user:        NewUserStore(db),
		googleToken: NewGoogleTokenStore(db),
	}
}

func (s *DataStore) Report() Report {
	return s.report
}

func (s *DataStore) ReportType() ReportType {
	return s.reportType
}

func (s *DataStore) User() User {
	return s.user
}

func (s *DataStore) GoogleToken() GoogleToken {
	return s.googleToken
}

func (s *DataStore) DB() *gorm.DB {
	return s.db
}

// Seed inserts seed users and report types that do not exist yet. Existing rows are left untouched.
func (s *DataStore) Seed(ctx context.Context, seed *config.Seed) error {
	logger := zap.S().Named("store")

	for _, u := range seed.Users {
		_, err := s.user.GetByEmail(ctx, u.Email)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		if _, err := s.user.Create(ctx, models.User{Email: u.Email, Name: u.Name, Role: u.Role}); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		logger.Infow("seeded user", "email", u.Email, "role", u.Role)
	}

	for _, rt := range seed.ReportTypes {
		_, err := s.reportType.GetByName(ctx, rt.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return fmt.Errorf("seed report type %s: %w", rt.Name, err)
		}
		if _, err := s.reportType.Create(ctx, models.ReportType{Name: rt.Name, Prompt: rt.Prompt, Status: rt.Status}); err != nil {
			return fmt.Errorf("seed report type %s: %w", rt.Name, err)
		}
		logger.Infow("seeded report type", "name", rt.Name)
	}

	return nil
}
