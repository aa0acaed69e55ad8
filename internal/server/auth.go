package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"deepreport/internal/config"
	"deepreport/internal/models"
	"deepreport/internal/store"
)

const (
	JWTAuthentication  = "jwt"
	NoneAuthentication = "none"

	localUserID    = "local-admin"
	localUserEmail = "admin@deepreport.local"
)

type Authenticator interface {
	Authenticator(next http.Handler) http.Handler
}

func NewAuthenticator(ctx context.Context, authConfig config.Auth, users store.User) (Authenticator, error) {
	zap.S().Named("auth").Infof("authentication: '%s'", authConfig.AuthenticationType)

	switch authConfig.AuthenticationType {
	case JWTAuthentication:
		if authConfig.JWTSecret == "" {
			return nil, errors.New("jwt authentication needs DEEPREPORT_JWT_SECRET")
		}
		return NewJWTAuthenticator([]byte(authConfig.JWTSecret), users), nil
	case NoneAuthentication:
		return NewNoneAuthenticator(ctx, users)
	default:
		return nil, fmt.Errorf("unknown authentication type %q", authConfig.AuthenticationType)
	}
}

type userKeyType struct{}

var userKey userKeyType

func NewUserContext(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userKey).(*models.User)
	return u, ok && u != nil
}

func MustHaveUser(ctx context.Context) *models.User {
	u, found := UserFromContext(ctx)
	if !found {
		zap.S().Named("auth").Panic("failed to find user in context")
	}
	return u
}

// accessClaims are the claims of a hosted-identity access token.
type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// JWTAuthenticator verifies HS256 bearer tokens and maps the subject onto a local user.
type JWTAuthenticator struct {
	secret []byte
	users  store.User
}

func NewJWTAuthenticator(secret []byte, users store.User) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret, users: users}
}

func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (*models.User, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithExpirationRequired())

	claims := &accessClaims{}
	t, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate token: %w", err)
	}
	if !t.Valid {
		return nil, errors.New("failed to parse or validate token")
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, errors.New("token is missing the sub or email claim")
	}

	return resolveUser(ctx, a.users, claims.Subject, claims.Email)
}

func (a *JWTAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			renderError(w, r, http.StatusUnauthorized, "No token provided")
			return
		}

		user, err := a.Authenticate(r.Context(), token)
		if err != nil {
			zap.S().Named("auth").Debugw("authentication failed", "error", err)
			renderError(w, r, http.StatusUnauthorized, "authentication failed")
			return
		}

		next.ServeHTTP(w, r.WithContext(NewUserContext(r.Context(), user)))
	})
}

// NoneAuthenticator treats every request as the local super admin. Development only.
type NoneAuthenticator struct {
	users store.User
}

func NewNoneAuthenticator(ctx context.Context, users store.User) (*NoneAuthenticator, error) {
	user, err := users.EnsureExists(ctx, localUserID, localUserEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to create local user: %w", err)
	}
	if !user.IsSuperAdmin() {
		if err := users.SetRole(ctx, user.ID, models.RoleSuperAdmin); err != nil {
			return nil, fmt.Errorf("failed to promote local user: %w", err)
		}
	}
	return &NoneAuthenticator{users: users}, nil
}

func (n *NoneAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := n.users.Get(r.Context(), localUserID)
		if err != nil {
			renderError(w, r, http.StatusInternalServerError, "local user is missing")
			return
		}
		next.ServeHTTP(w, r.WithContext(NewUserContext(r.Context(), user)))
	})
}

// resolveUser finds the local user for a token subject. Users created ahead of their first
// sign-in (seeded or by an admin) are matched by email.
func resolveUser(ctx context.Context, users store.User, id, email string) (*models.User, error) {
	user, err := users.Get(ctx, id)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	user, err = users.GetByEmail(ctx, strings.ToLower(email))
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	return users.EnsureExists(ctx, id, strings.ToLower(email))
}

// bearerToken reads the Authorization header.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	return ""
}

// queryToken lets websocket upgrades carry the access token as ?access_token,
// since browsers cannot set headers on them. Every other request must use the
// Authorization header.
func queryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("access_token")
		if token == "" || bearerToken(r) != "" || !websocket.IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		r = r.Clone(r.Context())
		r.Header.Set("Authorization", "Bearer "+token)
		next.ServeHTTP(w, r)
	})
}
