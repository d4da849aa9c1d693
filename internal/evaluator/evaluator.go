// Package evaluator scores discovery candidates with a chat-completion
// model. Transport failures surface as errors and feed the circuit breaker;
// a response the model formats badly is a Malformed verdict, not an error,
// so one confused completion never trips the breaker.
package evaluator

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

	"github.com/sony/gobreaker/v2"

	"rollscout/internal/config"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	jsonResponseType   = "json_object"
)

// Outcome classifies an evaluation result.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeRejected  Outcome = "rejected"
	OutcomeMalformed Outcome = "malformed"
)

// Candidate is the material handed to the model for one video.
type Candidate struct {
	Title        string
	Description  string
	ChannelTitle string
	SubjectHint  string
	TopicHint    string
}

// Verdict is the model's judgment of a candidate. Score is clamped to
// [0, 10] and Credibility to [0, 100]; Mentions lists instructor names the
// model spotted in the material.
type Verdict struct {
	Outcome     Outcome
	Score       float64
	Credibility int
	Subject     string
	Topic       string
	Category    string
	Reason      string
	Mentions    []string
}

// Evaluator defines the scoring operation the admission pipeline consumes.
type Evaluator interface {
	Evaluate(ctx context.Context, candidate Candidate) (*Verdict, error)
}

// Client talks to an OpenRouter-compatible chat completion endpoint.
type Client struct {
	cfg        config.Evaluator
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[string]
}

var _ Evaluator = (*Client)(nil)

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs an evaluator client.
func NewClient(cfg config.Evaluator, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("evaluator api key required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("evaluator base url required")
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	failureLimit := cfg.BreakerFailureLimit
	if failureLimit <= 0 {
		failureLimit = 5
	}
	cooldown := time.Duration(cfg.BreakerCooldownSeconds) * time.Second
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}

	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        "evaluator",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(failureLimit)
			},
		}),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type verdictPayload struct {
	Accepted    bool     `json:"accepted"`
	Score       float64  `json:"score"`
	Credibility int      `json:"credibility"`
	Subject     string   `json:"subject"`
	Topic       string   `json:"topic"`
	Category    string   `json:"category"`
	Reason      string   `json:"reason"`
	Instructors []string `json:"instructors"`
}

// Evaluate scores one candidate.
func (c *Client) Evaluate(ctx context.Context, candidate Candidate) (*Verdict, error) {
	if strings.TrimSpace(candidate.Title) == "" {
		return nil, errors.New("evaluate: candidate title required")
	}

	content, err := c.breaker.Execute(func() (string, error) {
		return c.complete(ctx, buildUserPrompt(candidate))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("evaluate: circuit open: %w", err)
		}
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	var payload verdictPayload
	if err := decodeModelJSON(content, &payload); err != nil {
		return &Verdict{Outcome: OutcomeMalformed, Reason: err.Error()}, nil
	}

	verdict := &Verdict{
		Outcome:     OutcomeRejected,
		Score:       clampScore(payload.Score),
		Credibility: clampCredibility(payload.Credibility),
		Subject:     strings.TrimSpace(payload.Subject),
		Topic:       strings.TrimSpace(payload.Topic),
		Category:    strings.TrimSpace(payload.Category),
		Reason:      strings.TrimSpace(payload.Reason),
	}
	if payload.Accepted {
		verdict.Outcome = OutcomeAccepted
	}
	for _, name := range payload.Instructors {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			verdict.Mentions = append(verdict.Mentions, trimmed)
		}
	}
	return verdict, nil
}

// CheckHealth issues a minimal completion to verify the key and model work.
func (c *Client) CheckHealth(ctx context.Context) error {
	content, err := c.complete(ctx, `Respond with {"ok":true}`)
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := decodeModelJSON(content, &parsed); err != nil {
		return fmt.Errorf("evaluator health: parse payload: %w", err)
	}
	if !parsed.OK {
		return errors.New("evaluator health: unexpected response")
	}
	return nil
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) complete(ctx context.Context, userPrompt string) (string, error) {
	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("evaluator returned %d: %s", resp.StatusCode, snippet(string(body)))
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("evaluator api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("evaluator returned empty choices")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("evaluator returned empty content")
	}
	return content, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

func clampCredibility(credibility int) int {
	if credibility < 0 {
		return 0
	}
	if credibility > 100 {
		return 100
	}
	return credibility
}
