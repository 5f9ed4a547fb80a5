package alert

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/bikemon/internal/groutine"
	"github.com/srg/bikemon/internal/ringchan"
)

// DefaultQueueSize bounds the number of undelivered notifications a Dispatcher holds.
const DefaultQueueSize = 32

// Kind distinguishes notification requests.
type Kind int

const (
	KindConnection Kind = iota
	KindBattery
	KindAssistMode
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindBattery:
		return "battery"
	case KindAssistMode:
		return "assist_mode"
	default:
		return "unknown"
	}
}

// Event is one queued notification request.
type Event struct {
	Kind      Kind
	Connected bool
	Level     int
	Label     string
}

func (e Event) deliver(s Sink) {
	switch e.Kind {
	case KindConnection:
		s.ConnectionChanged(e.Connected)
	case KindBattery:
		s.BatteryChanged(e.Level)
	case KindAssistMode:
		s.AssistModeChanged(e.Label)
	}
}

// Dispatcher is a Sink that queues notifications and delivers them to the wrapped sink
// on its own goroutine, so a slow sink never stalls the caller. When the queue is full
// the oldest undelivered notification is dropped.
type Dispatcher struct {
	sink   Sink
	queue  *ringchan.RingChannel[Event]
	logger *logrus.Logger

	once sync.Once
	done <-chan struct{}
}

// NewDispatcher starts delivering to sink. Call Close to flush and stop.
func NewDispatcher(sink Sink, logger *logrus.Logger) *Dispatcher {
	return NewDispatcherWithSize(sink, DefaultQueueSize, logger)
}

// NewDispatcherWithSize is NewDispatcher with an explicit queue size.
func NewDispatcherWithSize(sink Sink, size int, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	if sink == nil {
		sink = Nop{}
	}

	d := &Dispatcher{
		sink:   sink,
		queue:  ringchan.New[Event](size),
		logger: logger,
	}
	d.done = groutine.Go(context.Background(), "alert-dispatcher", func(context.Context) {
		for ev := range d.queue.C() {
			ev.deliver(d.sink)
		}
	})
	return d
}

func (d *Dispatcher) enqueue(ev Event) {
	if d.queue.Send(ev) {
		d.logger.WithField("kind", ev.Kind.String()).Warn("Alert queue full, dropped oldest notification")
	}
}

func (d *Dispatcher) ConnectionChanged(connected bool) {
	d.enqueue(Event{Kind: KindConnection, Connected: connected})
}

func (d *Dispatcher) BatteryChanged(level int) {
	d.enqueue(Event{Kind: KindBattery, Level: level})
}

func (d *Dispatcher) AssistModeChanged(label string) {
	d.enqueue(Event{Kind: KindAssistMode, Label: label})
}

// Close stops accepting notifications and waits until queued ones are delivered.
func (d *Dispatcher) Close() {
	d.once.Do(d.queue.Close)
	<-d.done
}

// Dropped returns how many notifications were discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.queue.GetMetrics().Overwritten
}
