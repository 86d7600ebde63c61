package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"codepair/pkg/types"
)

// Reviewer error types.
var (
	ErrReviewerDisabled = errors.New("code reviewer is not configured")
	ErrEmptyCompletion  = errors.New("model returned an empty completion")
	ErrMalformedReview  = errors.New("model response contained no review object")
)

const defaultModel = "gpt-4o"

// chatCompleter is the slice of the OpenAI client the reviewer uses.
// Tests substitute a fake; production wires *openai.ChatCompletionService.
type chatCompleter interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures the AI code reviewer.
type Options struct {
	APIKey string
	// Model overrides the default chat model when set.
	Model string
	// Timeout bounds one review request. Zero means 60 seconds.
	Timeout time.Duration
}

// Reviewer asks a chat model for a structured review of interview code.
// The model is prompted to answer with a single JSON object; the response
// is scanned for the outermost braces so surrounding prose or markdown
// fences do not break decoding.
type Reviewer struct {
	completions chatCompleter
	model       string
	timeout     time.Duration
}

// NewReviewer creates a reviewer backed by the OpenAI API.
func NewReviewer(opts Options) (*Reviewer, error) {
	if opts.APIKey == "" {
		return nil, ErrReviewerDisabled
	}

	client := openai.NewClient(option.WithAPIKey(opts.APIKey))
	return newReviewer(&client.Chat.Completions, opts), nil
}

func newReviewer(completions chatCompleter, opts Options) *Reviewer {
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Reviewer{completions: completions, model: model, timeout: timeout}
}

// reviewPayload mirrors the JSON object the prompt asks the model for.
type reviewPayload struct {
	Quality           string   `json:"quality"`
	CodeQualityScore  int      `json:"codeQualityScore"`
	BestPractices     []string `json:"bestPractices"`
	PotentialBugs     []string `json:"potentialBugs"`
	PerformanceIssues []string `json:"performanceIssues"`
	Suggestions       []string `json:"suggestions"`
	Summary           string   `json:"summary"`
}

// Review asks the model to assess the given code. The returned review
// carries the analysis fields only; the caller fills in identity fields
// before persisting.
func (r *Reviewer) Review(ctx context.Context, code, language string) (*types.Review, error) {
	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	completion, err := r.completions.New(opCtx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You are an expert code reviewer for technical interviews. Respond with a single JSON object and nothing else."),
			openai.UserMessage(buildPrompt(code, language)),
		},
		Temperature: openai.Float(0.7),
		MaxTokens:   openai.Int(2000),
	})
	if err != nil {
		return nil, fmt.Errorf("review request failed: %w", err)
	}

	if len(completion.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	payload, err := extractReview(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	return &types.Review{
		Code:              code,
		Language:          language,
		Quality:           payload.Quality,
		CodeQualityScore:  payload.CodeQualityScore,
		BestPractices:     emptyIfNil(payload.BestPractices),
		PotentialBugs:     emptyIfNil(payload.PotentialBugs),
		PerformanceIssues: emptyIfNil(payload.PerformanceIssues),
		Suggestions:       emptyIfNil(payload.Suggestions),
		Summary:           payload.Summary,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

func buildPrompt(code, language string) string {
	var b strings.Builder
	b.WriteString("Review the following ")
	b.WriteString(language)
	b.WriteString(" code written during a technical interview.\n\n")
	b.WriteString("Respond with a JSON object of this exact shape:\n")
	b.WriteString(`{"quality": "excellent|good|fair|poor", "codeQualityScore": 1-10, "bestPractices": [], "potentialBugs": [], "performanceIssues": [], "suggestions": [], "summary": ""}`)
	b.WriteString("\n\nCode:\n```")
	b.WriteString(language)
	b.WriteString("\n")
	b.WriteString(code)
	b.WriteString("\n```\n")
	return b.String()
}

// extractReview pulls the review object out of the model response. Models
// sometimes wrap the JSON in markdown fences or add commentary, so the
// content between the first '{' and the last '}' is what gets decoded.
func extractReview(content string) (*reviewPayload, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end < start {
		return nil, ErrMalformedReview
	}

	var payload reviewPayload
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReview, err)
	}
	return &payload, nil
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
