// Package monitor turns decoded readings into change notifications and a bounded
// history of raw frames.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/srg/bikemon/internal/telemetry"
)

// LogCapacity is the number of entries the frame log retains.
const LogCapacity = 50

// LogTimeFormat renders entry timestamps.
const LogTimeFormat = "15:04:05"

// LogEntry records one received frame.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Length    int       `json:"length"`
	RawHex    string    `json:"raw"`
	Summary   string    `json:"summary"`
}

// NewLogEntry builds the log entry for r, summarized with labels.
func NewLogEntry(r telemetry.Reading, labels telemetry.AssistLabels) LogEntry {
	return LogEntry{
		Timestamp: r.CapturedAt,
		Length:    r.Length,
		RawHex:    r.RawHex,
		Summary:   labels.Summary(r),
	}
}

// String renders the entry as "HH:MM:SS [<len>b]: <raw hex>".
func (e LogEntry) String() string {
	return fmt.Sprintf("%s [%db]: %s", e.Timestamp.Format(LogTimeFormat), e.Length, e.RawHex)
}

// Log is the bounded frame history. It is safe for concurrent use.
type Log struct {
	mu   sync.RWMutex
	ring *Ring[LogEntry]
}

// NewLog returns an empty log of LogCapacity entries.
func NewLog() *Log {
	return NewLogWithCapacity(LogCapacity)
}

// NewLogWithCapacity returns an empty log of the given capacity.
func NewLogWithCapacity(capacity int) *Log {
	return &Log{ring: NewRing[LogEntry](capacity)}
}

// Append adds e, evicting the oldest entry once the log is full.
func (l *Log) Append(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring.Push(e)
}

// Entries returns a snapshot, newest first.
func (l *Log) Entries() []LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ring.Newest()
}

// Len returns the number of entries held.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ring.Len()
}

// Clear empties the log.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring.Clear()
}
