// Package history implements the ordered conversation log: an append-ordered
// sequence of chat turns with age expiry, whitespace compression, and
// count-bounded trimming.
package history

import (
	"regexp"
	"strings"
	"time"
)

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is a single conversational turn. Text is mutable only by
// compression; Timestamp is milliseconds since epoch and immutable once set.
type Message struct {
	Sender     Sender `json:"sender"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
	Compressed bool   `json:"compressed,omitempty"`
}

// Age returns how long ago the message was created.
func (m Message) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(m.Timestamp))
}

var (
	spaceRuns  = regexp.MustCompile(`[ \t\r\f]+`)
	blankLines = regexp.MustCompile(`\n\s*\n`)
)

// CompressText applies the deterministic whitespace normalization used for
// oversized messages: runs of spaces and tabs collapse to a single space,
// blank lines collapse, and edges are trimmed. Lossy on whitespace only;
// applying it twice yields the same result.
func CompressText(text string) string {
	text = spaceRuns.ReplaceAllString(text, " ")
	text = blankLines.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}
