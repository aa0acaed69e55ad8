package docs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"deepreport/internal/api"
	"deepreport/internal/metrics"
)

const (
	DefaultDocsBaseURL  = "https://docs.googleapis.com"
	DefaultDriveBaseURL = "https://www.googleapis.com"
)

// APIError is a non-2xx answer from the Docs or Drive API.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("google %s failed: HTTP %d - %s", e.Op, e.StatusCode, e.Message)
}

// Document identifies a created Google Doc.
type Document struct {
	DocumentID  string `json:"document_id"`
	WebViewLink string `json:"web_view_link"`
}

// Generator creates Google Docs on behalf of one signed-in user.
type Generator struct {
	docs   *api.Client
	drive  *api.Client
	tokens oauth2.TokenSource
}

// NewGenerator builds a generator. Document writes are never retried; the Drive
// metadata read is.
func NewGenerator(docsBaseURL, driveBaseURL string, tokens oauth2.TokenSource) *Generator {
	if docsBaseURL == "" {
		docsBaseURL = DefaultDocsBaseURL
	}
	if driveBaseURL == "" {
		driveBaseURL = DefaultDriveBaseURL
	}
	return &Generator{
		docs:   api.NewClient(docsBaseURL),
		drive:  api.NewClient(driveBaseURL, api.WithRetry(3)),
		tokens: tokens,
	}
}

type batchUpdateResponse struct {
	Replies []struct {
		CreateHeader *struct {
			HeaderID string `json:"headerId"`
		} `json:"createHeader"`
	} `json:"replies"`
}

// CreateDocument creates a document titled title, optionally puts logoURL in its
// header and fills the body from the Markdown content.
func (g *Generator) CreateDocument(ctx context.Context, title, content, logoURL string) (*Document, error) {
	doc, err := g.createDocument(ctx, title, content, logoURL)
	if err != nil {
		metrics.IncreaseDocumentsCreated("error")
		return nil, err
	}
	metrics.IncreaseDocumentsCreated("success")
	return doc, nil
}

func (g *Generator) createDocument(ctx context.Context, title, content, logoURL string) (*Document, error) {
	logger := zap.S().Named("docs")

	token, err := g.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get google access token: %w", err)
	}

	var created struct {
		DocumentID string `json:"documentId"`
	}
	resp, err := g.docs.R(ctx).
		SetAuthToken(token.AccessToken).
		SetBody(map[string]string{"title": title}).
		Post(g.docs.URL("v1/documents"))
	if err := decodeResponse("create document", resp, err, &created); err != nil {
		return nil, err
	}
	if created.DocumentID == "" {
		return nil, errors.New("create document response did not include a document id")
	}
	logger.Infow("document created", "document_id", created.DocumentID)

	var requests []Request
	if logoURL != "" {
		replies, err := g.batchUpdate(ctx, token.AccessToken, created.DocumentID, HeaderRequests())
		if err != nil {
			return nil, err
		}
		if len(replies.Replies) > 0 && replies.Replies[0].CreateHeader != nil && replies.Replies[0].CreateHeader.HeaderID != "" {
			requests = append(requests, LogoRequests(replies.Replies[0].CreateHeader.HeaderID, logoURL)...)
		} else {
			logger.Warnw("header created without id, skipping logo", "document_id", created.DocumentID)
		}
	}

	requests = append(requests, Translate(content, 1)...)
	if _, err := g.batchUpdate(ctx, token.AccessToken, created.DocumentID, requests); err != nil {
		return nil, err
	}

	var file struct {
		ID          string `json:"id"`
		WebViewLink string `json:"webViewLink"`
	}
	resp, err = g.drive.R(ctx).
		SetAuthToken(token.AccessToken).
		SetQueryParam("fields", "id,webViewLink").
		Get(g.drive.URL("drive/v3/files/" + created.DocumentID))
	if err := decodeResponse("get file", resp, err, &file); err != nil {
		return nil, err
	}

	return &Document{DocumentID: created.DocumentID, WebViewLink: file.WebViewLink}, nil
}

func (g *Generator) batchUpdate(ctx context.Context, accessToken, documentID string, requests []Request) (*batchUpdateResponse, error) {
	var out batchUpdateResponse
	resp, err := g.docs.R(ctx).
		SetAuthToken(accessToken).
		SetBody(map[string]interface{}{"requests": requests}).
		Post(g.docs.URL(fmt.Sprintf("v1/documents/%s:batchUpdate", documentID)))
	if err := decodeResponse("batch update", resp, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// decodeResponse checks the response and decodes its body into out whatever the declared content type.
func decodeResponse(op string, resp *resty.Response, err error, out interface{}) error {
	if err := checkResponse(op, resp, err); err != nil {
		return err
	}
	if len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode(), Message: "invalid response body: " + err.Error()}
	}
	return nil
}

func checkResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("google %s request failed: %w", op, err)
	}
	if resp.IsSuccess() {
		return nil
	}

	message := resp.Status()
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(resp.Body(), &body) == nil && body.Error.Message != "" {
		message = body.Error.Message
	}
	return &APIError{Op: op, StatusCode: resp.StatusCode(), Message: message}
}
