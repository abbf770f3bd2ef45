// Package openai is the backup remote generation strategy, speaking the
// OpenAI responses API. It is placed after the primary remote strategy in the
// chain and only sees traffic when that one has failed.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/mindwell-ai/companion-core/core/emotion"
	"github.com/mindwell-ai/companion-core/core/generation"
	"github.com/mindwell-ai/companion-core/core/provider"
	"github.com/mindwell-ai/companion-core/core/retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
)

const (
	apiURL       = "https://api.openai.com/v1/responses"
	defaultModel = "gpt-4o-mini"
	providerName = "openai"

	// historyWindow matches the primary remote strategy so a mid-chain
	// fallback sees the same conversation.
	historyWindow = 8
)

// Client generates replies through the OpenAI responses API.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithModel overrides the model.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient builds a client. An empty apiKey falls back to the
// OPENAI_API_KEY environment variable; a missing key is reported on first
// use, not here, so the chain can be assembled unconditionally.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	client := &Client{
		apiKey:     apiKey,
		model:      defaultModel,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

var _ generation.Strategy = (*Client)(nil)

func (c *Client) Name() string { return providerName }

// Attempt prompts the responses API with the persona instructions and recent
// history. The emotion tag is inferred from the reply text; the responses API
// is not asked for structured output.
func (c *Client) Attempt(ctx context.Context, req generation.Request) (*generation.Reply, error) {
	ctx, span := tracer.Start(ctx, "prompt openai")
	defer span.End()

	if c.apiKey == "" {
		err := &provider.ConfigurationError{Provider: providerName, Reason: "api key not found"}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, retry.Abort(err)
	}

	content, err := c.prompt(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	content = postProcess(content)
	if content == "" {
		return nil, &provider.TransientError{Provider: providerName, Reason: "model returned empty output"}
	}
	return &generation.Reply{Content: content, Emotion: emotion.Infer(content)}, nil
}

// postProcess trims whitespace and strips the "Response:" echo artifact some
// models prepend, matching the primary remote strategy.
func postProcess(content string) string {
	content = strings.TrimSpace(content)
	if rest, found := strings.CutPrefix(content, "Response:"); found {
		content = strings.TrimSpace(rest)
	}
	return content
}

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type requestBody struct {
	Model        string         `json:"model"`
	Instructions string         `json:"instructions"`
	Input        []inputMessage `json:"input"`
}

type responseBody struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

func (c *Client) prompt(ctx context.Context, req generation.Request) (string, error) {
	history := req.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	input := make([]inputMessage, 0, len(history)+1)
	for _, exchange := range history {
		input = append(input, inputMessage{Role: exchange.Role, Content: exchange.Content})
	}
	input = append(input, inputMessage{Role: "user", Content: req.Message})

	requestBodyBytes, err := json.Marshal(requestBody{
		Model:        c.model,
		Instructions: generation.PersonaPreamble,
		Input:        input,
	})
	if err != nil {
		return "", fmt.Errorf("error marshalling JSON: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &provider.TransientError{Provider: providerName, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "", retry.Abort(&provider.ConfigurationError{Provider: providerName, Reason: "credential rejected"})
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			logger.WarnContext(ctx, "openai rejected request", "status", resp.StatusCode, "body", string(body))
			return "", retry.Abort(&provider.ValidationError{Provider: providerName, Reason: "malformed request", Detail: string(body)})
		default:
			return "", &provider.TransientError{Provider: providerName, Reason: "non-OK HTTP status", StatusCode: resp.StatusCode}
		}
	}

	var parsed responseBody
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("error unmarshalling response body: %w", err)
	}

	for _, output := range parsed.Output {
		if output.Type != "message" {
			continue
		}
		for _, content := range output.Content {
			if content.Type == "output_text" && content.Text != "" {
				return content.Text, nil
			}
		}
	}

	return "", &provider.TransientError{Provider: providerName, Reason: "response contained no text output"}
}
