package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deepreport/internal/config"
	"deepreport/internal/models"
)

func TestJWTAuthenticator(t *testing.T) {
	ctx := context.Background()

	sign := func(t *testing.T, method jwt.SigningMethod, claims accessClaims) string {
		t.Helper()
		signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return signed
	}
	valid := func(sub, email string) accessClaims {
		return accessClaims{
			Email: email,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   sub,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
	}

	t.Run("Should create a user on first sign-in", func(t *testing.T) {
		h := newHarness(t)
		auth := NewJWTAuthenticator([]byte(testSecret), h.store.User())

		user, err := auth.Authenticate(ctx, sign(t, jwt.SigningMethodHS256, valid("new-user", "New@Example.com")))
		require.NoError(t, err)
		assert.Equal(t, "new-user", user.ID)
		assert.Equal(t, "new@example.com", user.Email)
		assert.Equal(t, models.RoleUser, user.Role)
	})

	t.Run("Should match a pre-created user by email", func(t *testing.T) {
		h := newHarness(t)
		auth := NewJWTAuthenticator([]byte(testSecret), h.store.User())

		user, err := auth.Authenticate(ctx, sign(t, jwt.SigningMethodHS256, valid("idp-subject", h.admin.Email)))
		require.NoError(t, err)
		assert.Equal(t, h.admin.ID, user.ID)
		assert.True(t, user.IsAdmin())
	})

	t.Run("Should reject bad tokens", func(t *testing.T) {
		h := newHarness(t)
		auth := NewJWTAuthenticator([]byte(testSecret), h.store.User())

		expired := valid(h.user.ID, h.user.Email)
		expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		noExpiry := valid(h.user.ID, h.user.Email)
		noExpiry.ExpiresAt = nil

		tokens := map[string]string{
			"expired":       sign(t, jwt.SigningMethodHS256, expired),
			"no expiry":     sign(t, jwt.SigningMethodHS256, noExpiry),
			"wrong alg":     sign(t, jwt.SigningMethodHS384, valid(h.user.ID, h.user.Email)),
			"missing email": sign(t, jwt.SigningMethodHS256, valid(h.user.ID, "")),
			"garbage":       "not-a-token",
		}
		for name, tok := range tokens {
			_, err := auth.Authenticate(ctx, tok)
			assert.Error(t, err, name)
		}

		other, err := jwt.NewWithClaims(jwt.SigningMethodHS256, valid(h.user.ID, h.user.Email)).SignedString([]byte("other-secret"))
		require.NoError(t, err)
		_, err = auth.Authenticate(ctx, other)
		assert.Error(t, err)
	})

	t.Run("Should reject a query token outside websocket upgrades", func(t *testing.T) {
		h := newHarness(t)
		tok := token(t, h.user, time.Hour)

		for _, path := range []string{
			"/api/v1/me?access_token=" + tok,
			"/api/v1/reports?access_token=" + tok,
			"/api/v1/events?report=r1&access_token=" + tok,
		} {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			rec := httptest.NewRecorder()
			h.handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		}
	})

	t.Run("Should accept a query token on a websocket upgrade", func(t *testing.T) {
		h := newHarness(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/events?access_token="+token(t, h.user, time.Hour), nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)

		// authenticated, then refused for lacking a report
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("Should ignore a query token on upgrades to other routes", func(t *testing.T) {
		h := newHarness(t)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/me?access_token="+token(t, h.user, time.Hour), nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestNewAuthenticator(t *testing.T) {
	ctx := context.Background()

	t.Run("Should require a secret for jwt", func(t *testing.T) {
		h := newHarness(t)
		_, err := NewAuthenticator(ctx, config.Auth{AuthenticationType: JWTAuthentication}, h.store.User())
		assert.Error(t, err)
	})

	t.Run("Should reject unknown types", func(t *testing.T) {
		h := newHarness(t)
		_, err := NewAuthenticator(ctx, config.Auth{AuthenticationType: "ldap"}, h.store.User())
		assert.Error(t, err)
	})

	t.Run("Should run every request as the local super admin", func(t *testing.T) {
		h := newHarness(t)
		auth, err := NewAuthenticator(ctx, config.Auth{AuthenticationType: NoneAuthentication}, h.store.User())
		require.NoError(t, err)

		var seen *models.User
		handler := auth.Authenticator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = MustHaveUser(r.Context())
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		require.NotNil(t, seen)
		assert.Equal(t, localUserID, seen.ID)
		assert.True(t, seen.IsSuperAdmin())
	})
}

func TestStateSigner(t *testing.T) {
	t.Run("Should round trip the user id", func(t *testing.T) {
		signer, err := newStateSigner(testSecret)
		require.NoError(t, err)

		state, err := signer.Sign("user-1")
		require.NoError(t, err)
		userID, err := signer.Verify(state)
		require.NoError(t, err)
		assert.Equal(t, "user-1", userID)
	})

	t.Run("Should expire", func(t *testing.T) {
		signer, err := newStateSigner(testSecret)
		require.NoError(t, err)
		state, err := signer.Sign("user-1")
		require.NoError(t, err)

		signer.now = func() time.Time { return time.Now().Add(stateTTL + time.Minute) }
		_, err = signer.Verify(state)
		assert.Error(t, err)
	})

	t.Run("Should not accept an access token as state", func(t *testing.T) {
		signer, err := newStateSigner(testSecret)
		require.NoError(t, err)

		_, err = signer.Verify(token(t, &models.User{ID: "user-1", Email: "user@example.com"}, time.Hour))
		assert.Error(t, err)
	})

	t.Run("Should use a random key without a secret", func(t *testing.T) {
		a, err := newStateSigner("")
		require.NoError(t, err)
		b, err := newStateSigner("")
		require.NoError(t, err)

		state, err := a.Sign("user-1")
		require.NoError(t, err)
		_, err = b.Verify(state)
		assert.Error(t, err)
	})
}
