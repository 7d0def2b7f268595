package stt

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestDeepgramConfig_ListenURL(t *testing.T) {
	cfg := DefaultDeepgramConfig("key")
	u, err := url.Parse(cfg.listenURL())
	if err != nil {
		t.Fatalf("invalid url: %v", err)
	}

	if u.Host != "api.deepgram.com" {
		t.Errorf("host = %q", u.Host)
	}

	want := map[string]string{
		"language":        "pt-BR",
		"encoding":        "linear16",
		"sample_rate":     "16000",
		"channels":        "1",
		"interim_results": "true",
		"model":           "nova-2",
	}
	for k, v := range want {
		if got := u.Query().Get(k); got != v {
			t.Errorf("query %s = %q, want %q", k, got, v)
		}
	}
	if u.Query().Has("endpointing") {
		t.Error("endpointing should be omitted when zero")
	}
}

// fakeDeepgram accepts one connection, records audio frames and replays
// the given messages.
func fakeDeepgram(t *testing.T, messages []string, audio chan<- []byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, m := range messages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				audio <- data
			}
		}
	}))
}

func TestDeepgramClient_Results(t *testing.T) {
	messages := []string{
		`{"type":"Metadata"}`,
		`{"type":"Results","channel":{"alternatives":[{"transcript":"","confidence":0}]},"is_final":false}`,
		`{"type":"Results","channel":{"alternatives":[{"transcript":"eu tenho","confidence":0.8}]},"is_final":false}`,
		`not json`,
		`{"type":"Results","channel":{"alternatives":[{"transcript":"eu tenho febre","confidence":0.95}]},"is_final":true,"speech_final":true}`,
	}
	audio := make(chan []byte, 1)
	srv := fakeDeepgram(t, messages, audio)
	defer srv.Close()

	cfg := DefaultDeepgramConfig("secret")
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := NewDeepgramClient(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewDeepgramClient failed: %v", err)
	}
	defer client.Close()

	var got []TranscriptResult
	for len(got) < 2 {
		select {
		case r := <-client.Results():
			got = append(got, r)
		case <-ctx.Done():
			t.Fatalf("timed out, got %d results", len(got))
		}
	}

	if got[0].Text != "eu tenho" || got[0].IsFinal {
		t.Errorf("first result = %+v", got[0])
	}
	if got[1].Text != "eu tenho febre" || !got[1].IsFinal || !got[1].SpeechFinal {
		t.Errorf("second result = %+v", got[1])
	}

	if err := client.StreamAudio(ctx, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("StreamAudio failed: %v", err)
	}
	select {
	case frame := <-audio:
		if len(frame) != 4 {
			t.Errorf("frame length = %d, want 4", len(frame))
		}
	case <-ctx.Done():
		t.Fatal("audio frame not received")
	}

	if err := client.Close(); err != nil {
		t.Logf("Close returned %v", err)
	}
	if err := client.StreamAudio(ctx, []byte{1}); err == nil {
		t.Error("StreamAudio after Close should fail")
	}
}

func TestDeepgramClient_Unauthorized(t *testing.T) {
	srv := fakeDeepgram(t, nil, make(chan []byte))
	defer srv.Close()

	cfg := DefaultDeepgramConfig("wrong")
	cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")

	if _, err := NewDeepgramClient(context.Background(), cfg, nil); err == nil {
		t.Error("expected dial error")
	}
}
