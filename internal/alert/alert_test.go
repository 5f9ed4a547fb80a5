package alert

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
}

func (r *recorder) add(ev Event) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ConnectionChanged(c bool) { r.add(Event{Kind: KindConnection, Connected: c}) }
func (r *recorder) BatteryChanged(l int) { r.add(Event{Kind: KindBattery, Level: l}) }
func (r *recorder) AssistModeChanged(s string) {
	r.add(Event{Kind: KindAssistMode, Label: s})
}

func (r *recorder) got() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf, false)

	s.ConnectionChanged(true)
	s.BatteryChanged(81)
	s.BatteryChanged(15)
	s.AssistModeChanged("TURBO")
	s.ConnectionChanged(false)

	assert.Equal(t, "[link] connected\n"+
		"[battery] 81%\n"+
		"[battery] 15% (low)\n"+
		"[assist] TURBO\n"+
		"[link] disconnected\n", buf.String())
}

func TestConsoleSink_Colors(t *testing.T) {
	var buf bytes.Buffer
	NewConsoleSink(&buf, true).ConnectionChanged(true)

	assert.Contains(t, buf.String(), "\x1b[", "colored output MUST carry ANSI escapes")
	assert.Contains(t, buf.String(), "[link] connected")
}

func TestLogSink(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s := NewLogSink(logger)

	s.BatteryChanged(50)
	s.BatteryChanged(10)
	s.AssistModeChanged("ECO")

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, 50, entries[0].Data["battery"])
	assert.Equal(t, logrus.WarnLevel, entries[1].Level, "low battery MUST log at warn")
	assert.Equal(t, "ECO", entries[2].Data["assist_mode"])
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi(a, nil, b)

	m.BatteryChanged(42)
	m.AssistModeChanged("SPORT")
	m.ConnectionChanged(false)

	want := []Event{
		{Kind: KindBattery, Level: 42},
		{Kind: KindAssistMode, Label: "SPORT"},
		{Kind: KindConnection, Connected: false},
	}
	assert.Equal(t, want, a.got())
	assert.Equal(t, want, b.got())
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	rec := &recorder{}
	d := NewDispatcher(rec, nil)

	d.ConnectionChanged(true)
	d.BatteryChanged(90)
	d.AssistModeChanged("TOUR")
	d.Close()

	assert.Equal(t, []Event{
		{Kind: KindConnection, Connected: true},
		{Kind: KindBattery, Level: 90},
		{Kind: KindAssistMode, Label: "TOUR"},
	}, rec.got())
}

func TestDispatcher_DropsOldestWhenSinkStalls(t *testing.T) {
	// GOAL: A stalled sink never blocks the caller
	//
	// TEST SCENARIO: sink blocks → enqueue more than the queue holds → calls return,
	// oldest undelivered notifications are dropped

	rec := &recorder{block: make(chan struct{})}
	logger, _ := test.NewNullLogger()
	d := NewDispatcherWithSize(rec, 2, logger)

	returned := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.BatteryChanged(i)
		}
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("notifications MUST NOT block when the sink stalls")
	}

	close(rec.block)
	d.Close()

	got := rec.got()
	require.NotEmpty(t, got)
	assert.Equal(t, 9, got[len(got)-1].Level, "latest notification MUST survive")
	assert.Positive(t, d.Dropped())
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(nil, nil)
	d.Close()
	d.Close()

	assert.NotPanics(t, func() { d.BatteryChanged(1) })
}
