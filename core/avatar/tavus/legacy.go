package tavus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/mindwell-ai/companion-core/core/avatar"
	"github.com/mindwell-ai/companion-core/core/provider"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// LegacyClient talks to the pre-conversations v1 sessions API. Kept only as
// a fallback for accounts that have not been migrated.
type LegacyClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// LegacyClientOption configures a LegacyClient.
type LegacyClientOption func(*LegacyClient)

// WithLegacyBaseURL points the client at a different API host.
func WithLegacyBaseURL(baseURL string) LegacyClientOption {
	return func(c *LegacyClient) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// NewLegacyClient builds a v1 sessions client. An empty apiKey falls back to
// the TAVUS_API_KEY environment variable.
func NewLegacyClient(apiKey string, opts ...LegacyClientOption) (*LegacyClient, error) {
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("TAVUS_API_KEY"); !ok {
			return nil, &provider.ConfigurationError{Provider: providerName, Reason: "api key not found"}
		}
	}

	client := &LegacyClient{
		apiKey:     apiKey,
		baseURL:    apiBaseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

var _ avatar.LegacySessionAPI = (*LegacyClient)(nil)

type createSessionRequest struct {
	ReplicaID   string `json:"replica_id"`
	PersonaID   string `json:"persona_id,omitempty"`
	SessionName string `json:"session_name,omitempty"`
}

type sessionResponse struct {
	SessionID  string `json:"session_id"`
	SessionURL string `json:"session_url"`
}

// CreateSessionFull requests a session with the full payload: replica,
// persona, and session name.
func (c *LegacyClient) CreateSessionFull(ctx context.Context, req avatar.CreateRequest) (*avatar.Created, error) {
	return c.createSession(ctx, createSessionRequest{
		ReplicaID:   req.ReplicaID,
		PersonaID:   req.PersonaID,
		SessionName: req.Name,
	})
}

// CreateSessionSimple requests a session with the replica only. Some legacy
// accounts reject persona-bearing payloads; this is the minimal shape.
func (c *LegacyClient) CreateSessionSimple(ctx context.Context, replicaID string) (*avatar.Created, error) {
	return c.createSession(ctx, createSessionRequest{ReplicaID: replicaID})
}

func (c *LegacyClient) createSession(ctx context.Context, payload createSessionRequest) (*avatar.Created, error) {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/sessions", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, classifyLegacyStatus(resp)
	}

	var created sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	if created.SessionID == "" {
		return nil, &provider.TransientError{Provider: providerName, Reason: "response missing session id"}
	}

	return &avatar.Created{ID: created.SessionID, URL: created.SessionURL}, nil
}

// EndSession ends a v1 session by id.
func (c *LegacyClient) EndSession(ctx context.Context, id string) error {
	resp, err := c.doJSON(ctx, http.MethodPost, "/v1/sessions/"+id+"/end", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return classifyLegacyStatus(resp)
	}
}

func (c *LegacyClient) doJSON(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body *bytes.Buffer
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("error marshalling JSON: %w", err)
		}
		body = bytes.NewBuffer(encoded)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &provider.TransientError{Provider: providerName, Reason: err.Error()}
	}
	return resp, nil
}

func classifyLegacyStatus(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	if isCapacityBody(body) {
		return &provider.CapacityError{Provider: providerName, Reason: "session limit reached"}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &provider.ConfigurationError{Provider: providerName, Reason: "credential rejected"}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &provider.ValidationError{Provider: providerName, Reason: "rejected session request", Detail: string(body)}
	default:
		return &provider.TransientError{Provider: providerName, Reason: "non-OK HTTP status", StatusCode: resp.StatusCode}
	}
}
