package store

import (
	"context"
	"slices"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"deepreport/internal/models"
)

type ReportType interface {
	List(ctx context.Context, status string) ([]models.ReportType, error)
	Get(ctx context.Context, id string) (*models.ReportType, error)
	GetByName(ctx context.Context, name string) (*models.ReportType, error)
	Create(ctx context.Context, rt models.ReportType) (*models.ReportType, error)
	Update(ctx context.Context, id, name, prompt string) (*models.ReportType, error)
	SetStatus(ctx context.Context, id, status string) error
	SetAssignees(ctx context.Context, id string, userIDs []string) error
	RemoveAssignee(ctx context.Context, userID string) error
	Delete(ctx context.Context, id string) error
}

type ReportTypeStore struct {
	db *gorm.DB
}

var _ ReportType = (*ReportTypeStore)(nil)

func NewReportTypeStore(db *gorm.DB) ReportType {
	return &ReportTypeStore{db: db}
}

func (s *ReportTypeStore) List(ctx context.Context, status string) ([]models.ReportType, error) {
	tx := s.db.WithContext(ctx).Order("name ASC")
	if status != "" {
		tx = tx.Where("status = ?", status)
	}
	var types []models.ReportType
	if err := tx.Find(&types).Error; err != nil {
		return nil, translate(err)
	}
	return types, nil
}

func (s *ReportTypeStore) Get(ctx context.Context, id string) (*models.ReportType, error) {
	var rt models.ReportType
	if err := s.db.WithContext(ctx).First(&rt, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &rt, nil
}

func (s *ReportTypeStore) GetByName(ctx context.Context, name string) (*models.ReportType, error) {
	var rt models.ReportType
	if err := s.db.WithContext(ctx).First(&rt, "name = ?", name).Error; err != nil {
		return nil, translate(err)
	}
	return &rt, nil
}

func (s *ReportTypeStore) Create(ctx context.Context, rt models.ReportType) (*models.ReportType, error) {
	if rt.AssignedTo == nil {
		rt.AssignedTo = datatypes.JSONSlice[string]{}
	}
	if err := s.db.WithContext(ctx).Create(&rt).Error; err != nil {
		return nil, translate(err)
	}
	return &rt, nil
}

func (s *ReportTypeStore) Update(ctx context.Context, id, name, prompt string) (*models.ReportType, error) {
	res := s.db.WithContext(ctx).Model(&models.ReportType{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"name":       name,
			"prompt":     prompt,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	return s.Get(ctx, id)
}

func (s *ReportTypeStore) SetStatus(ctx context.Context, id, status string) error {
	return s.update(ctx, id, map[string]interface{}{"status": status})
}

func (s *ReportTypeStore) SetAssignees(ctx context.Context, id string, userIDs []string) error {
	if userIDs == nil {
		userIDs = []string{}
	}
	return s.update(ctx, id, map[string]interface{}{"assigned_to": datatypes.NewJSONSlice(userIDs)})
}

// RemoveAssignee drops userID from every report type it is assigned to. A type left with no
// assignees is deactivated rather than opened to everyone.
func (s *ReportTypeStore) RemoveAssignee(ctx context.Context, userID string) error {
	types, err := s.List(ctx, "")
	if err != nil {
		return err
	}
	for _, rt := range types {
		if !slices.Contains(rt.AssignedTo, userID) {
			continue
		}
		remaining := slices.DeleteFunc(slices.Clone([]string(rt.AssignedTo)), func(id string) bool {
			return id == userID
		})
		if err := s.SetAssignees(ctx, rt.ID, remaining); err != nil {
			return err
		}
		if len(remaining) == 0 {
			if err := s.SetStatus(ctx, rt.ID, models.ReportTypeInactive); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *ReportTypeStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.ReportType{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *ReportTypeStore) update(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	res := s.db.WithContext(ctx).Model(&models.ReportType{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
