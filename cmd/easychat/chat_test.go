package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/easychat-dev/easychat/internal/chat"
	"github.com/easychat-dev/easychat/internal/llm"
	"github.com/easychat-dev/easychat/internal/policy"
	"github.com/easychat-dev/easychat/internal/storage"
)

func newTestSession(t *testing.T, client llm.Client) *chat.Session {
	t.Helper()
	cfg := policy.Default()
	cfg.StreamThrottle = 0
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := chat.New(cfg, "test-model", client, storage.NewMemDriver(0), logger, nil)
	t.Cleanup(s.Close)
	return s
}

func TestStreamOncePrintsResponse(t *testing.T) {
	client := llm.NewMockClient(llm.MockResponse{Fragments: []string{"Hello ", "world"}})
	session := newTestSession(t, client)

	var buf bytes.Buffer
	if err := streamOnce(context.Background(), session, "hi", false, &buf); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "Hello world\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestStreamOnceHTMLRendersOnlyOnce(t *testing.T) {
	client := llm.NewMockClient(llm.MockResponse{Fragments: []string{"**bold", "** plain"}})
	session := newTestSession(t, client)

	var buf bytes.Buffer
	if err := streamOnce(context.Background(), session, "hi", true, &buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Contains(out, "**bold") {
		t.Errorf("raw markdown echoed alongside rendered output: %q", out)
	}
	if got := strings.Count(out, "<strong>bold</strong>"); got != 1 {
		t.Errorf("rendered response appears %d times, want 1: %q", got, out)
	}
}

func TestStreamOnceForwardsStreamError(t *testing.T) {
	client := llm.NewMockClient(llm.MockResponse{
		Fragments: []string{"partial"},
		Error:     context.DeadlineExceeded,
	})
	session := newTestSession(t, client)

	var buf bytes.Buffer
	if err := streamOnce(context.Background(), session, "hi", false, &buf); err == nil {
		t.Error("stream error not forwarded")
	}
}
