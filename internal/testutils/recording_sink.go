//go:build test

package testutils

import (
	"sync"

	"github.com/srg/bikemon/internal/alert"
)

// RecordingSink is an alert.Sink that keeps every notification in arrival order.
type RecordingSink struct {
	mu     sync.Mutex
	events []alert.Event
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (r *RecordingSink) record(ev alert.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *RecordingSink) ConnectionChanged(connected bool) {
	r.record(alert.Event{Kind: alert.KindConnection, Connected: connected})
}

func (r *RecordingSink) BatteryChanged(level int) {
	r.record(alert.Event{Kind: alert.KindBattery, Level: level})
}

func (r *RecordingSink) AssistModeChanged(label string) {
	r.record(alert.Event{Kind: alert.KindAssistMode, Label: label})
}

// Events returns a copy of everything recorded so far.
func (r *RecordingSink) Events() []alert.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alert.Event(nil), r.events...)
}

// OfKind returns the recorded events of one kind.
func (r *RecordingSink) OfKind(kind alert.Kind) []alert.Event {
	var out []alert.Event
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// Batteries returns the levels of every battery notification.
func (r *RecordingSink) Batteries() []int {
	var out []int
	for _, ev := range r.OfKind(alert.KindBattery) {
		out = append(out, ev.Level)
	}
	return out
}

// AssistModes returns the labels of every assist-mode notification.
func (r *RecordingSink) AssistModes() []string {
	var out []string
	for _, ev := range r.OfKind(alert.KindAssistMode) {
		out = append(out, ev.Label)
	}
	return out
}

// Connections returns the connected flag of every link notification.
func (r *RecordingSink) Connections() []bool {
	var out []bool
	for _, ev := range r.OfKind(alert.KindConnection) {
		out = append(out, ev.Connected)
	}
	return out
}

func (r *RecordingSink) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

var _ alert.Sink = (*RecordingSink)(nil)
