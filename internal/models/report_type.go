package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ReportTypeActive   = "active"
	ReportTypeInactive = "inactive"
)

// ReportType is an admin-managed prompt template.
type ReportType struct {
	ID         string                      `gorm:"primaryKey" json:"id"`
	Name       string                      `gorm:"unique;not null" json:"name"`
	Prompt     string                      `gorm:"type:text" json:"prompt"`
	Status     string                      `gorm:"not null;default:active" json:"status"`
	AssignedTo datatypes.JSONSlice[string] `gorm:"column:assigned_to" json:"assigned_to"`
	CreatedAt  time.Time                   `json:"created_at"`
	UpdatedAt  time.Time                   `json:"updated_at"`
}

// BeforeCreate hook to generate UUID before creating record
func (rt *ReportType) BeforeCreate(tx *gorm.DB) error {
	if rt.ID == "" {
		rt.ID = uuid.New().String()
	}
	if rt.Status == "" {
		rt.Status = ReportTypeActive
	}
	return nil
}

// TableName specifies the table name for GORM
func (ReportType) TableName() string {
	return "report_types"
}

// AvailableTo reports whether userID may use this type. An empty assignment list means everyone.
func (rt *ReportType) AvailableTo(userID string) bool {
	if rt.Status != ReportTypeActive {
		return false
	}
	if len(rt.AssignedTo) == 0 {
		return true
	}
	return slices.Contains([]string(rt.AssignedTo), userID)
}
