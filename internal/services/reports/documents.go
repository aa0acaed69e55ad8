package reports

import (
	"context"

	"golang.org/x/oauth2"

	"deepreport/internal/docs"
)

// TokenSourcer hands out per-user Google credentials.
type TokenSourcer interface {
	TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error)
}

// GoogleDocs creates documents in the calling user's Drive.
type GoogleDocs struct {
	auth         TokenSourcer
	docsBaseURL  string
	driveBaseURL string
	logoURL      string
}

func NewGoogleDocs(auth TokenSourcer, docsBaseURL, driveBaseURL, logoURL string) *GoogleDocs {
	return &GoogleDocs{auth: auth, docsBaseURL: docsBaseURL, driveBaseURL: driveBaseURL, logoURL: logoURL}
}

func (g *GoogleDocs) CreateDocument(ctx context.Context, userID, title, content string) (*docs.Document, error) {
	tokens, err := g.auth.TokenSource(ctx, userID)
	if err != nil {
		return nil, err
	}
	return docs.NewGenerator(g.docsBaseURL, g.driveBaseURL, tokens).CreateDocument(ctx, title, content, g.logoURL)
}
