package server

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	stateAudience = "google-oauth"
	stateTTL      = 10 * time.Minute
)

// stateSigner binds an OAuth round trip to the user who started it.
type stateSigner struct {
	secret []byte
	now    func() time.Time
}

// newStateSigner uses secret when set, otherwise a random per-process key.
func newStateSigner(secret string) (*stateSigner, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate state key: %w", err)
		}
	}
	return &stateSigner{secret: key, now: time.Now}, nil
}

func (s *stateSigner) Sign(userID string) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		Audience:  jwt.ClaimStrings{stateAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
	})
	return token.SignedString(s.secret)
}

// Verify returns the user id carried by a state value.
func (s *stateSigner) Verify(state string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &jwt.RegisteredClaims{}
	if _, err := parser.ParseWithClaims(state, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return "", fmt.Errorf("invalid oauth state: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("invalid oauth state: no subject")
	}
	return claims.Subject, nil
}
