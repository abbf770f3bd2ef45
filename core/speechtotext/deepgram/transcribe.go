// Package deepgram transcribes recorded utterances through the Deepgram
// listen websocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/mindwell-ai/companion-core/core/provider"
	"github.com/mindwell-ai/companion-core/core/speechtotext"
)

const (
	defaultEncoding   = "linear16"
	defaultSampleRate = 16000
	defaultLanguage   = "en-US"
	providerName      = "deepgram"

	// audioChunkSize keeps individual websocket frames small enough for the
	// recognizer to process incrementally.
	audioChunkSize = 8192
)

// TranscriptionClient performs one-shot transcription of recorded utterances.
type TranscriptionClient struct {
	apiKey string
}

// NewTranscriptionClient builds a transcription client. An empty apiKey falls
// back to the DEEPGRAM_API_KEY environment variable.
func NewTranscriptionClient(apiKey string) (*TranscriptionClient, error) {
	if apiKey == "" {
		var ok bool
		if apiKey, ok = os.LookupEnv("DEEPGRAM_API_KEY"); !ok {
			return nil, &provider.ConfigurationError{Provider: providerName, Reason: "api key not found"}
		}
	}
	return &TranscriptionClient{apiKey: apiKey}, nil
}

// TranscribeUtterance streams the recorded audio to the recognizer, waits for
// the stream to close, and returns the assembled transcript.
func (c *TranscriptionClient) TranscribeUtterance(ctx context.Context, audio []byte, opts ...speechtotext.TranscriptionOption) (string, error) {
	options := speechtotext.TranscriptionOptions{
		Encoding:   defaultEncoding,
		SampleRate: defaultSampleRate,
		Language:   defaultLanguage,
	}
	for _, opt := range opts {
		opt(&options)
	}

	conn, err := c.connectWebsocket(options)
	if err != nil {
		return "", fmt.Errorf("failed to open websocket: %w", err)
	}
	defer conn.Close()

	segments := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go readTranscriptSegments(conn, segments, readErr, done)

	var writeMu sync.Mutex
	if err := sendAudio(conn, &writeMu, audio); err != nil {
		return "", err
	}
	if err := sendCloseStream(conn, &writeMu); err != nil {
		return "", err
	}

	var transcript strings.Builder
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case err := <-readErr:
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(transcript.String()), nil
		case segment := <-segments:
			if transcript.Len() > 0 {
				transcript.WriteString(" ")
			}
			transcript.WriteString(segment)
			if options.PartialTranscriptionCallback != nil {
				options.PartialTranscriptionCallback(segment)
			}
		}
	}
}

func (c *TranscriptionClient) connectWebsocket(options speechtotext.TranscriptionOptions) (*websocket.Conn, error) {
	listenURL, _ := url.Parse("wss://api.deepgram.com/v1/listen")
	queryParams := listenURL.Query()
	queryParams.Set("encoding", options.Encoding)
	queryParams.Set("sample_rate", strconv.Itoa(options.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", "nova-3")
	queryParams.Set("language", options.Language)
	queryParams.Set("smart_format", "true")
	listenURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(listenURL.String(),
		http.Header{"Authorization": {"Token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func sendAudio(conn *websocket.Conn, writeMu *sync.Mutex, audio []byte) error {
	for offset := 0; offset < len(audio); offset += audioChunkSize {
		end := min(offset+audioChunkSize, len(audio))

		writeMu.Lock()
		err := conn.WriteMessage(websocket.BinaryMessage, audio[offset:end])
		writeMu.Unlock()
		if err != nil {
			return fmt.Errorf("failed to write to deepgram client: %w", err)
		}
	}
	return nil
}

func sendCloseStream(conn *websocket.Conn, writeMu *sync.Mutex) error {
	writeMu.Lock()
	defer writeMu.Unlock()

	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}
	return nil
}

// readTranscriptSegments forwards finalized transcript segments until the
// server closes the stream or the caller abandons it by closing done. A
// normal close reports nil on errs. Closing the connection unblocks
// ReadMessage but not a pending segment send, hence the done guard.
func readTranscriptSegments(conn *websocket.Conn, segments chan<- string, errs chan<- error, done <-chan struct{}) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				errs <- nil
			} else {
				errs <- fmt.Errorf("failed to read deepgram websocket message: %w", err)
			}
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		var parsedMsg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &parsedMsg); err != nil {
			continue
		}

		switch api.TypeResponse(parsedMsg.Type) {
		case api.TypeMessageResponse:
			var msgResp api.MessageResponse
			if err := json.Unmarshal(msg, &msgResp); err != nil {
				continue
			}
			if !msgResp.IsFinal || len(msgResp.Channel.Alternatives) == 0 {
				continue
			}
			if transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript); transcript != "" {
				select {
				case segments <- transcript:
				case <-done:
					return
				}
			}
		case api.TypeMetadataResponse:
			// Metadata arrives once the stream is fully processed; the
			// close frame follows.
		}
	}
}
