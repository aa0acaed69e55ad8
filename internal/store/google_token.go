package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"deepreport/internal/models"
)

// GoogleToken persists encrypted OAuth tokens. Encryption happens in the caller.
type GoogleToken interface {
	Get(ctx context.Context, userID string) (string, error)
	Save(ctx context.Context, userID, tokenEnc string) error
	Delete(ctx context.Context, userID string) error
}

type GoogleTokenStore struct {
	db *gorm.DB
}

var _ GoogleToken = (*GoogleTokenStore)(nil)

func NewGoogleTokenStore(db *gorm.DB) GoogleToken {
	return &GoogleTokenStore{db: db}
}

func (s *GoogleTokenStore) Get(ctx context.Context, userID string) (string, error) {
	var tok models.GoogleToken
	if err := s.db.WithContext(ctx).First(&tok, "user_id = ?", userID).Error; err != nil {
		return "", translate(err)
	}
	return tok.TokenEnc, nil
}

func (s *GoogleTokenStore) Save(ctx context.Context, userID, tokenEnc string) error {
	tok := models.GoogleToken{UserID: userID, TokenEnc: tokenEnc, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"token_enc", "updated_at"}),
		}).
		Create(&tok).Error
	return translate(err)
}

func (s *GoogleTokenStore) Delete(ctx context.Context, userID string) error {
	return translate(s.db.WithContext(ctx).Delete(&models.GoogleToken{}, "user_id = ?", userID).Error)
}
