package research

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"deepreport/internal/api"
	"deepreport/internal/metrics"
)

const (
	DefaultModel         = "o3-deep-research-2025-06-26"
	DefaultEffort        = "medium"
	DefaultSystemMessage = "You are a professional business research analyst. Provide comprehensive, well-structured research reports with citations."

	terminalCacheSize = 256
)

// Client talks to the OpenAI Responses API for background deep-research jobs.
type Client struct {
	http     *api.Client
	model    string
	effort   string
	timeout  time.Duration
	terminal *api.Cache[*Job]
}

type Option func(c *Client)

func WithModel(model string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

func WithEffort(effort string) Option {
	return func(c *Client) {
		if effort != "" {
			c.effort = effort
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		model:    DefaultModel,
		effort:   DefaultEffort,
		terminal: api.NewCache[*Job](terminalCacheSize),
	}
	for _, o := range opts {
		o(c)
	}
	c.http = api.NewClient(baseURL, api.WithBearerToken(apiKey), api.WithTimeout(c.timeout))
	return c
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type submitRequest struct {
	Model     string `json:"model"`
	Reasoning struct {
		Effort string `json:"effort"`
	} `json:"reasoning"`
	Input      []message           `json:"input"`
	Tools      []map[string]string `json:"tools"`
	Background bool                `json:"background"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Submit starts a background research job and returns its id.
func (c *Client) Submit(ctx context.Context, prompt, systemMessage string) (string, error) {
	if systemMessage == "" {
		systemMessage = DefaultSystemMessage
	}

	req := submitRequest{
		Model: c.model,
		Input: []message{
			{Role: "system", Content: systemMessage},
			{Role: "user", Content: prompt},
		},
		Tools:      []map[string]string{{"type": webSearchTool}},
		Background: true,
	}
	req.Reasoning.Effort = c.effort

	resp, err := c.http.Post(ctx, "responses", req)
	if err != nil {
		metrics.IncreaseResearchSubmissions("error")
		return "", &SubmissionError{Message: err.Error(), Err: err}
	}
	if !resp.IsSuccess() {
		metrics.IncreaseResearchSubmissions("error")
		return "", &SubmissionError{StatusCode: resp.StatusCode(), Message: upstreamMessage(resp)}
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body(), &created); err != nil || created.ID == "" {
		metrics.IncreaseResearchSubmissions("error")
		return "", &SubmissionError{StatusCode: resp.StatusCode(), Message: "response did not include a job id", Err: err}
	}

	metrics.IncreaseResearchSubmissions("success")
	zap.S().Named("research").Infow("research job submitted", "job_id", created.ID, "model", c.model)
	return created.ID, nil
}

// CheckStatus reads the job once. Terminal snapshots are served from cache.
func (c *Client) CheckStatus(ctx context.Context, jobID string) (*Job, error) {
	if job, ok := c.terminal.Get(jobID); ok {
		return job, nil
	}

	resp, err := c.http.Get(ctx, "responses/"+jobID, nil)
	if err != nil {
		return nil, &StatusCheckError{JobID: jobID, Message: err.Error(), Err: err}
	}
	if !resp.IsSuccess() {
		return nil, &StatusCheckError{JobID: jobID, StatusCode: resp.StatusCode(), Message: upstreamMessage(resp)}
	}

	job, err := parseJob(resp.Body())
	if err != nil {
		return nil, &StatusCheckError{JobID: jobID, StatusCode: resp.StatusCode(), Message: "invalid response body", Err: err}
	}
	if job.ID == "" {
		job.ID = jobID
	}

	metrics.IncreaseResearchPolls(string(job.Status))
	if job.Status.IsTerminal() {
		c.terminal.Put(jobID, job)
	}
	return job, nil
}

// Cancel asks the backend to stop the job. The next status read may still report in_progress.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	resp, err := c.http.Post(ctx, fmt.Sprintf("responses/%s/cancel", jobID), nil)
	if err != nil {
		return fmt.Errorf("failed to cancel research job: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("failed to cancel research job: %d", resp.StatusCode())
	}
	zap.S().Named("research").Infow("research job cancel requested", "job_id", jobID)
	return nil
}

func upstreamMessage(resp *resty.Response) string {
	var body apiErrorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return "Unknown error"
}
