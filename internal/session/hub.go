package session

import (
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/srg/bikemon/internal/device"
	"github.com/srg/bikemon/internal/monitor"
	"github.com/srg/bikemon/internal/ringchan"
	"github.com/srg/bikemon/internal/telemetry"
)

// DefaultWatchBuffer is the per-watcher queue size used when Watch is given zero.
const DefaultWatchBuffer = 64

// UpdateKind says which observable value an Update carries.
type UpdateKind int

const (
	UpdateState UpdateKind = iota
	UpdateReading
	UpdateScanResults
	UpdateLog
)

// Update is one push notification to presentation observers.
type Update struct {
	Kind     UpdateKind
	Status   Status
	Reading  telemetry.Reading
	Results  []device.PeripheralRef
	LogEntry monitor.LogEntry
}

// Watcher receives session updates until closed. A slow watcher loses its oldest
// pending updates rather than stalling the session.
type Watcher struct {
	id  uint64
	ch  *ringchan.RingChannel[Update]
	hub *hub
}

// C returns the update stream. It is closed by Close or when the session closes.
func (w *Watcher) C() <-chan Update {
	return w.ch.C()
}

// Close detaches the watcher.
func (w *Watcher) Close() {
	w.hub.remove(w.id)
}

// Dropped reports how many updates were discarded because the watcher fell behind.
func (w *Watcher) Dropped() int64 {
	return w.ch.GetMetrics().Overwritten
}

type hub struct {
	watchers *hashmap.Map[uint64, *ringchan.RingChannel[Update]]
	nextID   atomic.Uint64
	closed   atomic.Bool
}

func newHub() *hub {
	return &hub{watchers: hashmap.New[uint64, *ringchan.RingChannel[Update]]()}
}

func (h *hub) add(buffer int) *Watcher {
	if buffer <= 0 {
		buffer = DefaultWatchBuffer
	}
	w := &Watcher{id: h.nextID.Add(1), ch: ringchan.New[Update](buffer), hub: h}
	if h.closed.Load() {
		w.ch.Close()
		return w
	}
	h.watchers.Insert(w.id, w.ch)
	// closeAll may have run between the check and the insert
	if h.closed.Load() {
		h.remove(w.id)
	}
	return w
}

func (h *hub) remove(id uint64) {
	if ch, ok := h.watchers.Get(id); ok {
		h.watchers.Del(id)
		ch.Close()
	}
}

func (h *hub) publish(u Update) {
	h.watchers.Range(func(_ uint64, ch *ringchan.RingChannel[Update]) bool {
		ch.Send(u)
		return true
	})
}

func (h *hub) closeAll() {
	h.closed.Store(true)
	var ids []uint64
	h.watchers.Range(func(id uint64, _ *ringchan.RingChannel[Update]) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		h.remove(id)
	}
}

func (h *hub) len() int {
	return h.watchers.Len()
}
