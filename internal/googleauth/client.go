package googleauth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"deepreport/internal/api"
	"deepreport/internal/crypto"
	"deepreport/internal/store"
)

const DefaultRevokeURL = "https://oauth2.googleapis.com/revoke"

var Scopes = []string{
	"https://www.googleapis.com/auth/documents",
	"https://www.googleapis.com/auth/drive.file",
}

var ErrNotSignedIn = errors.New("google account not connected")

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	RevokeURL    string
	// Endpoint defaults to Google's.
	Endpoint oauth2.Endpoint
}

// Client connects users to their Google account and hands out access tokens for
// Docs and Drive. Tokens are kept in memory per user and persisted encrypted.
type Client struct {
	oauth     *oauth2.Config
	revokeURL string
	revoker   *api.Client
	tokens    store.GoogleToken
	cipher    *crypto.Cipher

	mu    sync.Mutex
	cache map[string]*oauth2.Token
}

func NewClient(cfg Config, tokens store.GoogleToken, cipher *crypto.Cipher) *Client {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = endpoints.Google
	}
	revokeURL := cfg.RevokeURL
	if revokeURL == "" {
		revokeURL = DefaultRevokeURL
	}

	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       Scopes,
		},
		revokeURL: revokeURL,
		revoker:   api.NewClient(revokeURL),
		tokens:    tokens,
		cipher:    cipher,
		cache:     make(map[string]*oauth2.Token),
	}
}

// AuthCodeURL is where the user grants access. state comes back on the callback.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it for userID.
func (c *Client) Exchange(ctx context.Context, userID, code string) error {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if err := c.save(ctx, userID, tok); err != nil {
		return err
	}
	zap.S().Named("googleauth").Infow("google account connected", "user_id", userID)
	return nil
}

// TokenSource returns a source that refreshes the user's token when it expires and
// persists every refreshed token.
func (c *Client) TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error) {
	tok, err := c.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &persistingSource{
		base:   c.oauth.TokenSource(ctx, tok),
		client: c,
		userID: userID,
		last:   tok.AccessToken,
	}, nil
}

func (c *Client) IsSignedIn(ctx context.Context, userID string) (bool, error) {
	_, err := c.load(ctx, userID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotSignedIn):
		return false, nil
	}
	return false, err
}

// SignOut revokes the user's token at Google and forgets it. Signing out a user
// without a token is a no-op.
func (c *Client) SignOut(ctx context.Context, userID string) error {
	tok, err := c.load(ctx, userID)
	if errors.Is(err, ErrNotSignedIn) {
		return nil
	}
	if err != nil {
		return err
	}

	revoke := tok.RefreshToken
	if revoke == "" {
		revoke = tok.AccessToken
	}
	resp, err := c.revoker.R(ctx).
		SetFormData(map[string]string{"token": revoke}).
		Post(c.revokeURL)
	if err != nil {
		zap.S().Named("googleauth").Warnw("token revoke request failed", "user_id", userID, "error", err)
	} else if !resp.IsSuccess() {
		zap.S().Named("googleauth").Warnw("token revoke rejected", "user_id", userID, "status", resp.StatusCode())
	}

	c.mu.Lock()
	delete(c.cache, userID)
	c.mu.Unlock()

	if err := c.tokens.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete google token: %w", err)
	}
	zap.S().Named("googleauth").Infow("google account disconnected", "user_id", userID)
	return nil
}

func (c *Client) load(ctx context.Context, userID string) (*oauth2.Token, error) {
	c.mu.Lock()
	cached, ok := c.cache[userID]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	sealed, err := c.tokens.Get(ctx, userID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, ErrNotSignedIn
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load google token: %w", err)
	}

	var tok oauth2.Token
	if err := c.cipher.OpenJSON(sealed, &tok); err != nil {
		return nil, fmt.Errorf("failed to decrypt google token: %w", err)
	}

	c.mu.Lock()
	c.cache[userID] = &tok
	c.mu.Unlock()
	return &tok, nil
}

func (c *Client) save(ctx context.Context, userID string, tok *oauth2.Token) error {
	sealed, err := c.cipher.SealJSON(tok)
	if err != nil {
		return fmt.Errorf("failed to encrypt google token: %w", err)
	}
	if err := c.tokens.Save(ctx, userID, sealed); err != nil {
		return fmt.Errorf("failed to save google token: %w", err)
	}

	c.mu.Lock()
	c.cache[userID] = tok
	c.mu.Unlock()
	return nil
}

type persistingSource struct {
	base   oauth2.TokenSource
	client *Client
	userID string

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.client.save(context.Background(), s.userID, tok); err != nil {
			zap.S().Named("googleauth").Warnw("failed to persist refreshed token", "user_id", s.userID, "error", err)
		}
	}
	return tok, nil
}
