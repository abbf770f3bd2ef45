package deepgram

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const finalSegmentMessage = `{"type":"Results","is_final":true,` +
	`"channel":{"alternatives":[{"transcript":"hello there"}]}}`

func dialTestServer(t *testing.T, handler http.HandlerFunc) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("failed to dial test server: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestReadTranscriptSegmentsCollectsFinals(t *testing.T) {
	upgrader := websocket.Upgrader{}
	conn := dialTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		serverConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer serverConn.Close()

		serverConn.WriteMessage(websocket.TextMessage, []byte(finalSegmentMessage))
		serverConn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	})

	segments := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go readTranscriptSegments(conn, segments, readErr, done)

	select {
	case segment := <-segments:
		if segment != "hello there" {
			t.Fatalf("unexpected segment %q", segment)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a finalized segment")
	}

	select {
	case err := <-readErr:
		if err != nil {
			t.Fatalf("expected a clean close, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the reader to finish")
	}
}

func TestReadTranscriptSegmentsStopsWhenAbandoned(t *testing.T) {
	upgrader := websocket.Upgrader{}
	conn := dialTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		serverConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer serverConn.Close()

		// Keep producing segments nobody will read.
		for range 10 {
			if err := serverConn.WriteMessage(websocket.TextMessage, []byte(finalSegmentMessage)); err != nil {
				return
			}
		}
	})

	segments := make(chan string) // never read, like a caller that returned early
	readErr := make(chan error, 1)
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		readTranscriptSegments(conn, segments, readErr, done)
		close(finished)
	}()

	close(done)
	conn.Close()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("reader goroutine leaked after the caller abandoned the stream")
	}
}
