package cleaner

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/easychat-dev/easychat/internal/history"
	"github.com/easychat-dev/easychat/internal/policy"
	"github.com/easychat-dev/easychat/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() policy.Config {
	cfg := policy.Default()
	cfg.CapacityBytes = 1000
	cfg.MaxMessages = 100
	cfg.EmergencyLimit = 20
	return cfg
}

func newEngine(cfg policy.Config, driver storage.Driver) (*Engine, *history.Log) {
	log := history.NewLog(cfg.MaxContextMessages)
	return New(cfg, log, driver, testLogger(), nil), log
}

func persistedMessages(t *testing.T, driver storage.Driver) []history.Message {
	t.Helper()
	data, ok, err := driver.Read(storage.HistoryKey)
	if err != nil || !ok {
		t.Fatalf("read snapshot: ok=%v err=%v", ok, err)
	}
	var msgs []history.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	return msgs
}

func TestNormalPassExpiresOldMessages(t *testing.T) {
	driver := storage.NewMemDriver(0)
	e, log := newEngine(testConfig(), driver)

	now := time.Now().UnixMilli()
	log.Restore([]history.Message{
		{Sender: history.SenderUser, Text: "old", Timestamp: now - 8*24*time.Hour.Milliseconds()},
		{Sender: history.SenderUser, Text: "new", Timestamp: now},
	})

	e.RunNormal()

	if e.Mode() != Idle {
		t.Errorf("mode = %v, want Idle", e.Mode())
	}
	msgs := log.Messages()
	if len(msgs) != 1 || msgs[0].Text != "new" {
		t.Errorf("log after pass = %+v", msgs)
	}
	// The snapshot converges with the in-memory log.
	persisted := persistedMessages(t, driver)
	if len(persisted) != 1 || persisted[0].Text != "new" {
		t.Errorf("persisted = %+v", persisted)
	}
}

func TestNormalPassCompressesAndTrims(t *testing.T) {
	driver := storage.NewMemDriver(0)
	cfg := testConfig()
	cfg.MaxMessages = 5
	cfg.CapacityBytes = 1 << 20
	e, log := newEngine(cfg, driver)

	now := time.Now().UnixMilli()
	msgs := make([]history.Message, 8)
	for i := range msgs {
		msgs[i] = history.Message{Sender: history.SenderUser, Text: "m", Timestamp: now}
	}
	msgs[7].Text = strings.Repeat("word  word   ", 200)
	log.Restore(msgs)

	e.RunNormal()

	got := log.Messages()
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5 (MaxMessages)", len(got))
	}
	last := got[len(got)-1]
	if !last.Compressed {
		t.Error("oversized message not compressed")
	}
	if strings.Contains(last.Text, "  ") {
		t.Error("whitespace runs survived compression")
	}
}

func TestNormalPassRemovesOrphans(t *testing.T) {
	driver := storage.NewMemDriver(0)
	e, log := newEngine(testConfig(), driver)
	log.Append(history.SenderUser, "hi")

	if err := driver.Write(storage.KeyPrefix+"cache", []byte("stale")); err != nil {
		t.Fatal(err)
	}
	if err := driver.Write("temp_chat_data", []byte("stale")); err != nil {
		t.Fatal(err)
	}
	// A foreign key not on the deny-list survives a normal pass.
	if err := driver.Write("other_app_setting", []byte("keep")); err != nil {
		t.Fatal(err)
	}

	e.RunNormal()

	for _, k := range []string{storage.KeyPrefix + "cache", "temp_chat_data"} {
		if _, ok, _ := driver.Read(k); ok {
			t.Errorf("orphan key %q survived", k)
		}
	}
	if _, ok, _ := driver.Read("other_app_setting"); !ok {
		t.Error("unrelated key removed by normal pass")
	}
}

// opRecorder wraps a driver and records the mutation order on the
// primary record.
type opRecorder struct {
	storage.Driver
	ops []string
}

func (r *opRecorder) Write(key string, value []byte) error {
	if key == storage.HistoryKey {
		r.ops = append(r.ops, "write")
	}
	return r.Driver.Write(key, value)
}

func (r *opRecorder) Remove(key string) error {
	if key == storage.HistoryKey {
		r.ops = append(r.ops, "remove")
	}
	return r.Driver.Remove(key)
}

func TestDefragmentRewritesHistoryKey(t *testing.T) {
	rec := &opRecorder{Driver: storage.NewMemDriver(0)}
	cfg := testConfig()
	log := history.NewLog(cfg.MaxContextMessages)
	e := New(cfg, log, rec, testLogger(), nil)

	log.Append(history.SenderUser, "hello")
	e.SaveSync()
	rec.ops = nil

	e.RunNormal()

	// Nothing expired, compressed, or trimmed, so the only mutation is the
	// defragment rewrite: remove the key, then re-insert it.
	want := []string{"remove", "write"}
	if len(rec.ops) != len(want) || rec.ops[0] != want[0] || rec.ops[1] != want[1] {
		t.Fatalf("ops = %v, want %v", rec.ops, want)
	}
	persisted := persistedMessages(t, rec)
	if len(persisted) != 1 || persisted[0].Text != "hello" {
		t.Errorf("persisted after defragment = %+v", persisted)
	}
}

func TestDefragmentSkippedWhenEmpty(t *testing.T) {
	driver := storage.NewMemDriver(0)
	e, _ := newEngine(testConfig(), driver)

	e.RunNormal()

	if _, ok, _ := driver.Read(storage.HistoryKey); ok {
		t.Error("empty log should not write a snapshot during defragment")
	}
}

func TestCapacityFailureEscalatesToEmergency(t *testing.T) {
	// Capacity small enough that the full snapshot cannot be written, but
	// large enough for the emergency-trimmed one.
	driver := storage.NewMemDriver(2048)
	cfg := testConfig()
	cfg.CapacityBytes = 2048
	cfg.EmergencyLimit = 3
	cfg.MaxMessages = 50
	e, log := newEngine(cfg, driver)

	now := time.Now().UnixMilli()
	msgs := make([]history.Message, 40)
	for i := range msgs {
		msgs[i] = history.Message{
			Sender:     history.SenderUser,
			Text:       strings.Repeat("x", 100),
			Timestamp:  now,
			Compressed: true,
		}
	}
	log.Restore(msgs)

	e.SaveSync()

	if got := log.Len(); got != cfg.EmergencyLimit {
		t.Fatalf("len after escalation = %d, want %d", got, cfg.EmergencyLimit)
	}
	for i, m := range log.Messages() {
		if m.Compressed {
			t.Errorf("msgs[%d] compressed flag not cleared by emergency trim", i)
		}
	}
	// The retried write succeeded with the trimmed log.
	if got := len(persistedMessages(t, driver)); got != cfg.EmergencyLimit {
		t.Errorf("persisted %d messages, want %d", got, cfg.EmergencyLimit)
	}
	if e.Mode() != Idle {
		t.Errorf("mode = %v, want Idle", e.Mode())
	}
}

func TestEmergencyPurgesAppKeys(t *testing.T) {
	driver := storage.NewMemDriver(0)
	e, log := newEngine(testConfig(), driver)
	log.Append(history.SenderUser, "hi")

	if err := driver.Write(storage.KeyPrefix+"draft", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := driver.Write("unrelated", []byte("keep")); err != nil {
		t.Fatal(err)
	}

	e.RunEmergency()

	if _, ok, _ := driver.Read(storage.KeyPrefix + "draft"); ok {
		t.Error("app-prefixed auxiliary key survived emergency cleanup")
	}
	if _, ok, _ := driver.Read("unrelated"); !ok {
		t.Error("foreign key removed by emergency cleanup")
	}
	if _, ok, _ := driver.Read(storage.HistoryKey); !ok {
		t.Error("primary record missing after emergency cleanup")
	}
}

func TestNoteAppendPersistsDeferred(t *testing.T) {
	driver := storage.NewMemDriver(0)
	e, log := newEngine(testConfig(), driver)

	log.Append(history.SenderUser, "hello")
	e.NoteAppend()
	e.Flush()

	persisted := persistedMessages(t, driver)
	if len(persisted) != 1 || persisted[0].Text != "hello" {
		t.Errorf("persisted = %+v", persisted)
	}
}

func TestNoteAppendTriggersEmergencyPastThreshold(t *testing.T) {
	// Capacity 1000 bytes, fill past 90%, then observe the
	// next append trigger an emergency trim.
	cfg := testConfig()
	cfg.CapacityBytes = 1000
	cfg.EmergencyLimit = 2
	driver := storage.NewMemDriver(0)
	e, log := newEngine(cfg, driver)

	if err := driver.Write(storage.KeyPrefix+"bulk", []byte(strings.Repeat("z", 950))); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UnixMilli()
	msgs := make([]history.Message, 10)
	for i := range msgs {
		msgs[i] = history.Message{Sender: history.SenderUser, Text: "m", Timestamp: now, Compressed: true}
	}
	log.Restore(msgs)
	log.Append(history.SenderUser, "tips it over")

	e.NoteAppend()
	e.Flush()

	if got := log.Len(); got != cfg.EmergencyLimit {
		t.Errorf("len = %d, want %d (emergency limit)", got, cfg.EmergencyLimit)
	}
	for i, m := range log.Messages() {
		if m.Compressed {
			t.Errorf("msgs[%d] compressed flag not cleared", i)
		}
	}
	if _, ok, _ := driver.Read(storage.KeyPrefix + "bulk"); ok {
		t.Error("bulk auxiliary key survived emergency cleanup")
	}
}

func TestCloseRunsFinalPass(t *testing.T) {
	driver := storage.NewMemDriver(0)
	e, log := newEngine(testConfig(), driver)

	e.Start()
	log.Append(history.SenderUser, "parting words")
	e.Close()

	persisted := persistedMessages(t, driver)
	if len(persisted) != 1 || persisted[0].Text != "parting words" {
		t.Errorf("persisted = %+v", persisted)
	}
}

func TestModeStringer(t *testing.T) {
	if Idle.String() != "idle" || RunningNormal.String() != "normal" || RunningEmergency.String() != "emergency" {
		t.Error("mode strings wrong")
	}
}
