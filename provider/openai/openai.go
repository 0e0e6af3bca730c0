package openai_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/actuarial-tools/asopd/config"
	"github.com/actuarial-tools/asopd/provider"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	systemPrompt = "You are an actuarial expert. Analyze this actuarial memorandum for ASOP compliance. " +
		"Provide specific insights about compliance with actuarial standards of practice."
)

// Client implements provider.Provider using OpenAI's chat/completions API.
type Client struct {
	apiKey          string
	baseURL         string
	completionModel string
	temperature     float64
	maxTokens       int
	maxRetries      uint64
	initialBackoff  time.Duration
	httpClient      *http.Client
}

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// request represents a request to the OpenAI API
type request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// response represents a response from the OpenAI API
type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient creates a new OpenAI client
func NewClient(cfg config.OpenAIConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	// A negative retry count would wrap when converted to uint64.
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		apiKey:          cfg.APIKey,
		baseURL:         strings.TrimRight(baseURL, "/"),
		completionModel: cfg.CompletionModel,
		temperature:     cfg.Temperature,
		maxTokens:       cfg.MaxTokens,
		maxRetries:      uint64(maxRetries),
		initialBackoff:  500 * time.Millisecond,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

// AnalyzeCompliance submits memorandum text for ASOP compliance analysis.
// Transient failures are retried with exponential backoff up to maxRetries;
// terminal failures propagate immediately.
func (c *Client) AnalyzeCompliance(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", provider.Terminal("empty input text", nil)
	}

	messages := []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: text},
	}

	var result string
	op := func() error {
		out, err := c.sendRequest(ctx, messages)
		if err != nil {
			var ae *provider.AnalysisError
			if errors.As(err, &ae) && !ae.Retriable {
				return backoff.Permanent(err)
			}
			return err
		}
		result = out
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialBackoff
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx)); err != nil {
		return "", err
	}
	return result, nil
}

// sendRequest sends one request to the OpenAI API and classifies failures.
func (c *Client) sendRequest(ctx context.Context, messages []Message) (string, error) {
	requestBody := request{
		Model:       c.completionModel,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	jsonData, err := json.Marshal(requestBody)
	if err != nil {
		return "", provider.Terminal("encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", provider.Terminal("build request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures are transient.
		return "", provider.Retriable("request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", provider.Terminal("authentication failed", fmt.Errorf("API returned status: %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", provider.Retriable("rate limited", fmt.Errorf("API returned status: %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return "", provider.Retriable("upstream error", fmt.Errorf("API returned status: %d", resp.StatusCode))
	default:
		return "", provider.Terminal("request rejected", fmt.Errorf("API returned status: %d", resp.StatusCode))
	}

	var openaiResp response
	if err := json.NewDecoder(resp.Body).Decode(&openaiResp); err != nil {
		return "", provider.Terminal("malformed response", err)
	}

	if len(openaiResp.Choices) == 0 {
		return "", provider.Terminal("no choices in response", nil)
	}
	content := strings.TrimSpace(openaiResp.Choices[0].Message.Content)
	if content == "" {
		return "", provider.Terminal("empty model response", nil)
	}
	return content, nil
}
