package models

import "time"

// GoogleToken holds a user's Google OAuth token, encrypted at rest.
type GoogleToken struct {
	UserID    string    `gorm:"primaryKey;column:user_id" json:"user_id"`
	TokenEnc  string    `gorm:"type:text;not null;column:token_enc" json:"-"` // Encrypted, never expose in JSON
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (GoogleToken) TableName() string {
	return "google_tokens"
}
