package history

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Log is the in-memory conversation log. Mutations are serialized by an
// internal mutex; ordering is append order and is never rearranged.
type Log struct {
	mu         sync.Mutex
	maxContext int
	msgs       []Message
}

// NewLog creates an empty log. maxContext bounds the log length on every
// append, independent of the storage-capacity cleanup caps.
func NewLog(maxContext int) *Log {
	if maxContext <= 0 {
		maxContext = 20
	}
	return &Log{maxContext: maxContext}
}

// Append creates a message with the current timestamp, appends it, and
// truncates the log to the most recent maxContext entries.
func (l *Log) Append(sender Sender, text string) Message {
	msg := Message{
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.msgs = append(l.msgs, msg)
	if len(l.msgs) > l.maxContext {
		l.msgs = l.msgs[len(l.msgs)-l.maxContext:]
	}
	return msg
}

// ExpireOlderThan removes messages whose age exceeds maxAge and returns how
// many were removed.
func (l *Log) ExpireOlderThan(maxAge time.Duration) int {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.msgs[:0]
	for _, m := range l.msgs {
		if m.Age(now) < maxAge {
			kept = append(kept, m)
		}
	}
	removed := len(l.msgs) - len(kept)
	l.msgs = kept
	return removed
}

// CompressOversized rewrites the text of every uncompressed message longer
// than threshold bytes and marks it compressed. Already-compressed messages
// are skipped, so a second call is a no-op.
func (l *Log) CompressOversized(threshold int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	compressed := 0
	for i := range l.msgs {
		m := &l.msgs[i]
		if m.Compressed || len(m.Text) <= threshold {
			continue
		}
		m.Text = CompressText(m.Text)
		m.Compressed = true
		compressed++
	}
	return compressed
}

// TrimToMostRecent keeps only the last n messages and returns how many were
// dropped.
func (l *Log) TrimToMostRecent(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trimLocked(n)
}

func (l *Log) trimLocked(n int) int {
	if n < 0 {
		n = 0
	}
	if len(l.msgs) <= n {
		return 0
	}
	removed := len(l.msgs) - n
	l.msgs = append(l.msgs[:0], l.msgs[len(l.msgs)-n:]...)
	return removed
}

// EmergencyTrim trims to the last limit messages and clears every remaining
// compressed flag so survivors can be recompressed on the next normal pass.
func (l *Log) EmergencyTrim(limit int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := l.trimLocked(limit)
	for i := range l.msgs {
		l.msgs[i].Compressed = false
	}
	return removed
}

// BuildContext renders up to the most recent window messages as a
// role-prefixed transcript followed by the new turn. With an empty log the
// new text is returned unmodified.
func (l *Log) BuildContext(newText string, window int) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.msgs) == 0 {
		return newText
	}

	recent := l.msgs
	if window > 0 && len(recent) > window {
		recent = recent[len(recent)-window:]
	}

	parts := make([]string, 0, len(recent)+2)
	parts = append(parts, "Previous conversation:")
	for _, m := range recent {
		role := "Assistant"
		if m.Sender == SenderUser {
			role = "User"
		}
		parts = append(parts, role+": "+m.Text)
	}
	parts = append(parts, "\nUser: "+newText)
	return strings.Join(parts, "\n")
}

// Messages returns a copy of the log in order.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Len returns the number of messages currently held.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

// Clear empties the log.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = nil
}

// Restore replaces the log contents, preserving the given order. Used when
// hydrating from a persisted snapshot.
func (l *Log) Restore(msgs []Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs[:0:0], msgs...)
}

// Snapshot serializes the log as the persisted JSON record array.
func (l *Log) Snapshot() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(l.msgs)
	if err != nil {
		return nil, fmt.Errorf("history: encode snapshot: %w", err)
	}
	return data, nil
}

// LoadSnapshot replaces the log from persisted bytes. On parse failure the
// log is left empty and the error is returned; a malformed record is never
// partially trusted.
func (l *Log) LoadSnapshot(data []byte) error {
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		l.Clear()
		return fmt.Errorf("history: corrupt snapshot: %w", err)
	}
	l.Restore(msgs)
	return nil
}
