// Package groq implements the remote generative strategy against the Groq
// chat completions API. It is the second link of the generation chain: the
// local pattern strategy runs first, and the static fallback catches total
// failure, so this client can afford to fail loudly.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mindwell-ai/companion-core/core/emotion"
	"github.com/mindwell-ai/companion-core/core/generation"
	"github.com/mindwell-ai/companion-core/core/provider"
	"github.com/mindwell-ai/companion-core/core/retry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/codes"
)

const (
	apiURL       = "https://api.groq.com/openai/v1/chat/completions"
	defaultModel = "llama-3.3-70b-versatile"
	providerName = "groq"

	// historyWindow bounds how many recent exchanges are sent with each
	// prompt.
	historyWindow = 8
)

// Client calls the Groq chat completions API and satisfies
// [generation.Strategy].
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithModel overrides the default model.
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

// NewClient builds a Groq client. The API key is validated lazily on first
// call so a misconfigured client surfaces as a ConfigurationError rather than
// a construction failure.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		model:      defaultModel,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) Name() string { return providerName }

// Attempt builds a persona-framed prompt from the request and asks the model
// for a reply. It prefers the structured JSON-schema call and falls back to a
// plain completion within the same attempt.
func (c *Client) Attempt(ctx context.Context, req generation.Request) (*generation.Reply, error) {
	ctx, span := tracer.Start(ctx, "prompt remote generation")
	defer span.End()

	if c.apiKey == "" {
		err := retry.Abort(&provider.ConfigurationError{Provider: providerName, Reason: "api key is missing"})
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	messages := c.buildMessages(req)

	if reply, err := c.promptStructured(ctx, messages); err == nil {
		return reply, nil
	} else if retry.IsAborted(err) {
		return nil, err
	} else {
		logger.WarnContext(ctx, "structured completion failed, retrying as plain completion", "error", err)
	}

	content, err := c.promptPlain(ctx, messages)
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

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *Client) buildMessages(req generation.Request) []message {
	messages := []message{{Role: "system", Content: systemPrompt(req)}}

	history := req.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	for _, exchange := range history {
		switch exchange.Role {
		case "user", "assistant":
			messages = append(messages, message{Role: exchange.Role, Content: exchange.Content})
		}
	}

	return append(messages, message{Role: "user", Content: req.Message})
}

func systemPrompt(req generation.Request) string {
	var builder strings.Builder
	builder.WriteString(generation.PersonaPreamble)

	if mood := req.Context.RecentMood; mood != nil {
		builder.WriteString(fmt.Sprintf("\n\nThe user's most recent mood check-in was %d out of 10.", *mood))
	}
	if activities := req.Context.CompletedActivities; len(activities) > 0 {
		builder.WriteString("\nActivities the user recently completed: ")
		builder.WriteString(strings.Join(activities, ", "))
		builder.WriteString(".")
	}

	return builder.String()
}

// postProcess trims whitespace and strips the "Response:" echo artifact some
// models prepend.
func postProcess(content string) string {
	content = strings.TrimSpace(content)
	if rest, found := strings.CutPrefix(content, "Response:"); found {
		content = strings.TrimSpace(rest)
	}
	return content
}

type completionRequest struct {
	Model          string              `json:"model"`
	Messages       []message           `json:"messages"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Client) promptPlain(ctx context.Context, messages []message) (string, error) {
	body, err := c.complete(ctx, completionRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", err
	}

	var response completionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("error unmarshalling response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", &provider.TransientError{Provider: providerName, Reason: "response contained no choices"}
	}

	return response.Choices[0].Message.Content, nil
}

// complete posts a completion request and classifies HTTP failures into the
// shared provider error taxonomy.
func (c *Client) complete(ctx context.Context, reqBody completionRequest) ([]byte, error) {
	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &provider.TransientError{Provider: providerName, Reason: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(ctx, resp.StatusCode, body)
	}

	return body, nil
}

func classifyStatus(ctx context.Context, statusCode int, body []byte) error {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return retry.Abort(&provider.ConfigurationError{Provider: providerName, Reason: "credential rejected"})
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		logger.ErrorContext(ctx, "request rejected by provider", "status", statusCode, "body", string(body))
		return retry.Abort(&provider.ValidationError{Provider: providerName, Reason: "malformed request", Detail: string(body)})
	default:
		return &provider.TransientError{Provider: providerName, Reason: "non-OK HTTP status", StatusCode: statusCode}
	}
}
