// Package deepgram synthesizes speech through the Deepgram speak API.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/mindwell-ai/companion-core/core/provider"
	"github.com/mindwell-ai/companion-core/core/texttospeech"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	speakHost    = "api.deepgram.com"
	speakPath    = "/v1/speak"
	providerName = "deepgram"

	defaultEncoding   = "linear16"
	defaultSampleRate = 24000
)

// Client is a one-shot Deepgram speak client.
type Client struct {
	apiKey     string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient builds a speak client. An empty apiKey falls back to the
// DEEPGRAM_API_KEY environment variable.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("DEEPGRAM_API_KEY"); !ok {
			return nil, &provider.ConfigurationError{Provider: providerName, Reason: "api key not found"}
		}
	}

	client := &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

var _ texttospeech.SpeechSynthesizerV0 = (*Client)(nil)

// Synthesize posts the text to the speak endpoint and returns the full audio
// payload.
func (c *Client) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesizeOption) (*texttospeech.Audio, error) {
	options := texttospeech.SynthesizeOptions{
		Profile:    texttospeech.DefaultProfile(),
		Encoding:   defaultEncoding,
		SampleRate: defaultSampleRate,
	}
	for _, opt := range opts {
		opt(&options)
	}

	urlValues := url.Values{}
	urlValues.Set("model", options.Profile.Voice)
	urlValues.Set("encoding", options.Encoding)
	urlValues.Set("sample_rate", strconv.Itoa(options.SampleRate))
	urlValues.Set("container", "none")

	requestBody, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	speakURL := (&url.URL{
		Scheme: "https",
		Host:   speakHost, Path: speakPath,
		RawQuery: urlValues.Encode(),
	}).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, speakURL, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "token "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &provider.TransientError{Provider: providerName, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, &provider.ConfigurationError{Provider: providerName, Reason: "credential rejected"}
		case http.StatusBadRequest:
			return nil, &provider.ValidationError{Provider: providerName, Reason: "malformed request", Detail: string(body)}
		default:
			return nil, &provider.TransientError{Provider: providerName, Reason: "non-OK HTTP status", StatusCode: resp.StatusCode}
		}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading audio payload: %w", err)
	}
	if len(audio) == 0 {
		return nil, &provider.TransientError{Provider: providerName, Reason: "empty audio payload"}
	}

	return &texttospeech.Audio{
		Data:       audio,
		Encoding:   options.Encoding,
		SampleRate: options.SampleRate,
	}, nil
}
