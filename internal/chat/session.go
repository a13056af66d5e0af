// Package chat provides the conversation session façade: it accepts user
// turns, streams provider responses, and delegates capacity management to
// the cleanup engine so callers never observe a storage failure.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/easychat-dev/easychat/internal/cleaner"
	"github.com/easychat-dev/easychat/internal/history"
	"github.com/easychat-dev/easychat/internal/llm"
	"github.com/easychat-dev/easychat/internal/policy"
	"github.com/easychat-dev/easychat/internal/storage"
	"github.com/easychat-dev/easychat/internal/telemetry"
)

// Update is one notification during a streamed response. Text is the full
// accumulated response so far. First marks the initial fragment so a caller
// can initialize its response container once; Final marks the terminal
// update. Err is set instead of Text when the stream failed.
type Update struct {
	Text  string
	First bool
	Final bool
	Err   error
}

// Session is the single-conversation façade consumed by a UI layer.
type Session struct {
	id       string
	cfg      policy.Config
	model    string
	client   llm.Client
	log      *history.Log
	driver   storage.Driver
	engine   *cleaner.Engine
	logger   *slog.Logger
	inFlight *semaphore.Weighted
}

// New creates a session, hydrates the log from persisted storage (a corrupt
// snapshot is discarded and the session starts empty), and starts the
// cleanup engine. metrics may be nil.
func New(cfg policy.Config, model string, client llm.Client, driver storage.Driver, logger *slog.Logger, metrics *telemetry.Metrics) *Session {
	id := ulid.Make().String()
	logger = telemetry.SessionLogger(logger, context.Background(), id)

	log := history.NewLog(cfg.MaxContextMessages)
	if data, ok, err := driver.Read(storage.HistoryKey); err != nil {
		logger.Warn("history read failed, starting empty", "error", err)
	} else if ok {
		if err := log.LoadSnapshot(data); err != nil {
			logger.Warn("corrupt history discarded", "error", err)
			_ = driver.Remove(storage.HistoryKey)
		}
	}

	s := &Session{
		id:       id,
		cfg:      cfg,
		model:    model,
		client:   client,
		log:      log,
		driver:   driver,
		engine:   cleaner.New(cfg, log, driver, logger, metrics),
		logger:   logger,
		inFlight: semaphore.NewWeighted(1),
	}
	s.engine.Start()
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// closedUpdates is returned for no-op submissions so callers can always
// range over the result.
func closedUpdates() <-chan Update {
	ch := make(chan Update)
	close(ch)
	return ch
}

// Submit sends a user turn and streams the response. Blank input is silently
// ignored, and a call while another request is in flight is a no-op; both
// return an already-closed channel. The returned channel delivers throttled
// accumulated-text updates and is closed after the terminal update.
//
// On successful completion the user and assistant turns are in the log and
// the cleanup engine has run its capacity check. On stream failure the error
// is forwarded and no assistant turn is recorded.
func (s *Session) Submit(ctx context.Context, text string) <-chan Update {
	text = strings.TrimSpace(text)
	if text == "" {
		return closedUpdates()
	}
	if !s.inFlight.TryAcquire(1) {
		return closedUpdates()
	}

	// Each request carries a correlation ID so its log lines can be tied
	// together; an ID already on the context is kept.
	if telemetry.CorrelationID(ctx) == "" {
		ctx = telemetry.WithCorrelationID(ctx, "")
	}
	logger := s.logger.With(slog.String("correlation_id", telemetry.CorrelationID(ctx)))

	// Context is built from the history before this turn; the user turn is
	// recorded only once the request is actually dispatched.
	contextText := s.log.BuildContext(text, s.cfg.ContextWindow)

	out := make(chan Update, 16)
	go func() {
		defer close(out)
		defer s.inFlight.Release(1)

		stream, err := s.client.ChatStream(ctx, llm.ChatRequest{
			Model: s.model,
			Messages: []llm.Message{
				{Role: llm.RoleUser, Content: contextText},
			},
		})
		if err != nil {
			logger.Error("stream open failed", "error", err)
			out <- Update{Err: err, Final: true}
			return
		}

		s.log.Append(history.SenderUser, text)
		s.engine.NoteAppend()

		var acc strings.Builder
		var lastSent time.Time
		first := true

		for ev := range stream {
			switch ev.Type {
			case "text":
				acc.WriteString(ev.Text)
				if first {
					out <- Update{Text: acc.String(), First: true}
					first = false
					lastSent = time.Now()
					continue
				}
				// Coalesce bursts: intermediate updates are dropped when
				// inside the throttle window or when the caller lags.
				if time.Since(lastSent) >= s.cfg.StreamThrottle {
					select {
					case out <- Update{Text: acc.String()}:
						lastSent = time.Now()
					default:
					}
				}
			case "error":
				logger.Error("stream failed", "error", ev.Error)
				out <- Update{Err: ev.Error, Final: true}
				return
			case "done":
				response := acc.String()
				if ev.Response != nil && ev.Response.Content != "" {
					response = ev.Response.Content
				}
				if strings.TrimSpace(response) != "" {
					s.log.Append(history.SenderAssistant, response)
					s.engine.NoteAppend()
				}
				out <- Update{Text: response, Final: true}
				return
			}
		}

		// Transport closed the stream without a terminal event.
		out <- Update{Text: acc.String(), Final: true}
	}()

	return out
}

// History returns a copy of the conversation log in order.
func (s *Session) History() []history.Message {
	return s.log.Messages()
}

// Usage returns the current storage usage snapshot.
func (s *Session) Usage() (storage.Usage, error) {
	return s.driver.Usage()
}

// Cleanup runs a manual cleanup pass; emergency selects the aggressive mode.
func (s *Session) Cleanup(emergency bool) {
	if emergency {
		s.engine.RunEmergency()
	} else {
		s.engine.RunNormal()
	}
}

// ClearHistory destroys the conversation log and its persisted record.
func (s *Session) ClearHistory() {
	s.log.Clear()
	if err := s.driver.Remove(storage.HistoryKey); err != nil {
		s.logger.Warn("clear history", "error", err)
	}
}

// Flush blocks until in-flight deferred saves have completed. Intended for
// tests and teardown paths that need a converged snapshot.
func (s *Session) Flush() {
	s.engine.Flush()
}

// Close stops the cleanup schedule and runs the final best-effort pass.
func (s *Session) Close() {
	s.engine.Close()
	s.logger.Debug("session closed")
}
