// Package tavus implements the avatar provider contracts against the Tavus
// HTTP API, covering both the current conversations API and the older
// sessions API.
package tavus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mindwell-ai/companion-core/core/avatar"
	"github.com/mindwell-ai/companion-core/core/provider"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	apiBaseURL   = "https://tavusapi.com"
	providerName = "tavus"

	// maxCallDuration bounds a single video call; the provider bills by the
	// minute and an abandoned tab should not run forever.
	maxCallDuration         = 30 * time.Minute
	participantAbsentCutoff = 2 * time.Minute
)

// Client talks to the Tavus v2 conversations API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different API host, mainly for tests.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimSuffix(baseURL, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient builds a conversations client. An empty apiKey falls back to the
// TAVUS_API_KEY environment variable.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("TAVUS_API_KEY"); !ok {
			return nil, &provider.ConfigurationError{Provider: providerName, Reason: "api key not found"}
		}
	}

	client := &Client{
		apiKey:     apiKey,
		baseURL:    apiBaseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

var _ avatar.ConversationAPI = (*Client)(nil)

// CheckHealth probes the API with an authenticated list call.
func (c *Client) CheckHealth(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/v2/replicas?limit=1", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.classifyStatus(resp, "health check failed")
	}
	return nil
}

// ReplicaExists checks that the avatar identity is known to the provider.
func (c *Client) ReplicaExists(ctx context.Context, replicaID string) error {
	resp, err := c.do(ctx, http.MethodGet, "/v2/replicas/"+replicaID, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return &provider.ConfigurationError{Provider: providerName, Reason: "replica not found"}
	default:
		return c.classifyStatus(resp, "replica lookup failed")
	}
}

type createConversationRequest struct {
	ReplicaID        string                  `json:"replica_id"`
	PersonaID        string                  `json:"persona_id,omitempty"`
	ConversationName string                  `json:"conversation_name,omitempty"`
	CustomGreeting   string                  `json:"custom_greeting,omitempty"`
	Properties       *conversationProperties `json:"properties,omitempty"`
}

type conversationProperties struct {
	MaxCallDuration          int `json:"max_call_duration"`
	ParticipantAbsentTimeout int `json:"participant_absent_timeout"`
}

type conversationResponse struct {
	ConversationID  string `json:"conversation_id"`
	ConversationURL string `json:"conversation_url"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

// CreateConversation requests a new video conversation.
func (c *Client) CreateConversation(ctx context.Context, req avatar.CreateRequest) (*avatar.Created, error) {
	ctx, span := tracer.Start(ctx, "create tavus conversation")
	defer span.End()

	payload := createConversationRequest{
		ReplicaID:        req.ReplicaID,
		PersonaID:        req.PersonaID,
		ConversationName: req.Name,
		CustomGreeting:   req.Greeting,
		Properties: &conversationProperties{
			MaxCallDuration:          int(maxCallDuration.Seconds()),
			ParticipantAbsentTimeout: int(participantAbsentCutoff.Seconds()),
		},
	}

	resp, err := c.do(ctx, http.MethodPost, "/v2/conversations", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.classifyStatus(resp, "conversation creation failed")
	}

	var created conversationResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to parse conversation response: %w", err)
	}
	if created.ConversationID == "" {
		return nil, &provider.TransientError{Provider: providerName, Reason: "response missing conversation id"}
	}

	return &avatar.Created{ID: created.ConversationID, URL: created.ConversationURL}, nil
}

// EndConversation ends a conversation by id. Ending an already-ended
// conversation reports 4xx on the provider side; that is treated as success.
func (c *Client) EndConversation(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodPost, "/v2/conversations/"+id+"/end", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound, http.StatusConflict:
		return nil
	default:
		return c.classifyStatus(resp, "failed to end conversation")
	}
}

type listConversationsResponse struct {
	Data []conversationResponse `json:"data"`
}

// ListConversations returns all conversations the account can see, mapped
// into the broker's provider-agnostic shape.
func (c *Client) ListConversations(ctx context.Context) ([]avatar.RemoteSession, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v2/conversations", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.classifyStatus(resp, "failed to list conversations")
	}

	var list listConversationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to parse conversation list: %w", err)
	}

	sessions := make([]avatar.RemoteSession, 0, len(list.Data))
	for _, conversation := range list.Data {
		createdAt, err := time.Parse(time.RFC3339, conversation.CreatedAt)
		if err != nil {
			logger.WarnContext(ctx, "unparseable conversation timestamp",
				"conversation_id", conversation.ConversationID, "created_at", conversation.CreatedAt)
			continue
		}
		sessions = append(sessions, avatar.RemoteSession{
			ID:        conversation.ConversationID,
			Active:    conversation.Status == "active",
			CreatedAt: createdAt,
		})
	}
	return sessions, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("error marshalling JSON: %w", err)
		}
		body = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &provider.TransientError{Provider: providerName, Reason: err.Error()}
	}
	return resp, nil
}

// classifyStatus maps a non-OK response onto the shared provider error
// taxonomy. The concurrency cap arrives as a 400 whose body names the limit,
// so the body is inspected before the status.
func (c *Client) classifyStatus(resp *http.Response, reason string) error {
	body, _ := io.ReadAll(resp.Body)

	if isCapacityBody(body) {
		return &provider.CapacityError{Provider: providerName, Reason: reason}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &provider.ConfigurationError{Provider: providerName, Reason: "credential rejected"}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &provider.ValidationError{Provider: providerName, Reason: reason, Detail: string(body)}
	default:
		return &provider.TransientError{Provider: providerName, Reason: reason, StatusCode: resp.StatusCode}
	}
}

func isCapacityBody(body []byte) bool {
	lowered := strings.ToLower(string(body))
	return strings.Contains(lowered, "maximum concurrent") ||
		strings.Contains(lowered, "concurrent conversations")
}
