// Package feedback asks an OpenAI-compatible chat model to review a judged
// submission. Feedback is advisory: it never changes a score or status, and
// an unreachable model degrades to an explicit unavailable result.
package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"classjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultModel        = "gpt-4o-mini"
	maxResponseBytes    = 1 << 20
	maxCodePromptBytes  = 16 * 1024
	maxErrorPromptBytes = 4 * 1024
)

// Config controls the feedback client.
type Config struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"baseURL"`
	APIKey  string        `yaml:"apiKey"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Feedback is the result of one analysis request.
// Either Text is set and Available is true, or Reason explains the absence.
type Feedback struct {
	Available bool
	Text      string
	Reason    string
}

// AnalyzeInput carries the judged submission context for the model.
type AnalyzeInput struct {
	ProblemTitle string
	Statement    string
	Code         string
	Status       string
	Score        int
	Diagnostic   string
}

// Analyzer produces feedback for a judged submission.
type Analyzer interface {
	Analyze(ctx context.Context, input AnalyzeInput) (Feedback, error)
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a feedback client. A disabled or unconfigured client
// still works; it reports feedback as unavailable.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze requests feedback for one judged submission.
// Transport and model failures come back as unavailable feedback, not errors.
func (c *Client) Analyze(ctx context.Context, input AnalyzeInput) (Feedback, error) {
	if !c.config.Enabled || c.config.BaseURL == "" {
		return Feedback{Reason: "feedback is not configured"}, nil
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildPrompt(input)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return Feedback{Reason: "encode request failed"}, nil
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Feedback{Reason: "build request failed"}, nil
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn(ctx, "feedback request failed", zap.Error(err))
		return Feedback{Reason: "feedback service unreachable"}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Feedback{Reason: "read response failed"}, nil
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn(ctx, "feedback service returned an error",
			zap.Int("status", resp.StatusCode))
		return Feedback{Reason: fmt.Sprintf("feedback service returned status %d", resp.StatusCode)}, nil
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Feedback{Reason: "decode response failed"}, nil
	}
	if parsed.Error != nil {
		return Feedback{Reason: parsed.Error.Message}, nil
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return Feedback{Reason: "feedback service returned no content"}, nil
	}
	return Feedback{
		Available: true,
		Text:      strings.TrimSpace(parsed.Choices[0].Message.Content),
	}, nil
}

const systemPrompt = "You are a programming teaching assistant. " +
	"Review the student's submission against the problem statement. " +
	"Point out what is wrong or could be improved in at most five short bullet points. " +
	"Do not write corrected code for the student."

func buildPrompt(input AnalyzeInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Problem: %s\n\n", input.ProblemTitle)
	if input.Statement != "" {
		fmt.Fprintf(&b, "Statement:\n%s\n\n", input.Statement)
	}
	fmt.Fprintf(&b, "Judge status: %s (score %d/100)\n", input.Status, input.Score)
	if input.Diagnostic != "" {
		fmt.Fprintf(&b, "Diagnostic:\n%s\n", truncate(input.Diagnostic, maxErrorPromptBytes))
	}
	fmt.Fprintf(&b, "\nSubmitted code:\n%s\n", truncate(input.Code, maxCodePromptBytes))
	return b.String()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n... (truncated)"
}
