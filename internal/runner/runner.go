package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codepair/pkg/types"
)

// ErrRunnerDisabled is returned when no execution backend is configured.
var ErrRunnerDisabled = errors.New("code runner is not configured")

// Options configures the Judge0 submission client.
type Options struct {
	// BaseURL of the Judge0 deployment, e.g. https://judge0-ce.p.rapidapi.com
	BaseURL string
	// APIKey and APIHost are sent as RapidAPI headers when set. Self-hosted
	// deployments leave both empty.
	APIKey  string
	APIHost string
	// Timeout bounds one submission round trip, including the synchronous
	// wait for the execution verdict. Zero means 30 seconds.
	Timeout time.Duration
}

// Client submits code to a Judge0-compatible execution API. Submissions use
// wait=true so one request carries the program all the way to its verdict.
type Client struct {
	baseURL    string
	apiKey     string
	apiHost    string
	httpClient *http.Client
}

// NewClient creates a runner client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, ErrRunnerDisabled
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		apiHost:    opts.APIHost,
		httpClient: &http.Client{Timeout: opts.Timeout},
	}, nil
}

type submissionRequest struct {
	LanguageID int    `json:"language_id"`
	SourceCode string `json:"source_code"`
	Stdin      string `json:"stdin,omitempty"`
}

type submissionResponse struct {
	Token         string  `json:"token"`
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Status        struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
}

// Run submits the program and waits for its verdict.
func (c *Client) Run(ctx context.Context, req *types.RunRequest) (*types.RunResult, error) {
	body, err := json.Marshal(submissionRequest{
		LanguageID: req.LanguageID,
		SourceCode: req.SourceCode,
		Stdin:      req.Stdin,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}

	url := c.baseURL + "/submissions?base64_encoded=false&wait=true"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build submission request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-RapidAPI-Key", c.apiKey)
	}
	if c.apiHost != "" {
		httpReq.Header.Set("X-RapidAPI-Host", c.apiHost)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submission request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read submission response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("execution API returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var sub submissionResponse
	if err := json.Unmarshal(respBody, &sub); err != nil {
		return nil, fmt.Errorf("failed to decode submission response: %w", err)
	}

	return &types.RunResult{
		Token:             sub.Token,
		Stdout:            sub.Stdout,
		Stderr:            sub.Stderr,
		CompileOutput:     sub.CompileOutput,
		StatusID:          sub.Status.ID,
		StatusDescription: sub.Status.Description,
	}, nil
}
