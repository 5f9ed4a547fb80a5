package session

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bikemon/internal/device"
	"github.com/srg/bikemon/internal/monitor"
	"github.com/srg/bikemon/internal/telemetry"
)

type linkEvent struct {
	gen       uint64
	connected bool
	err       error
}

type servicesEvent struct {
	gen uint64
	err error
}

type subscribedEvent struct {
	gen uint64
	err error
}

type connectTimeoutEvent struct {
	gen uint64
}

type inboundFrame struct {
	gen   uint64
	frame telemetry.Frame
}

// linkHandler tags every transport callback with the link generation it belongs to.
type linkHandler struct {
	s   *Session
	gen uint64
}

func (h *linkHandler) OnConnectionChange(connected bool, err error) {
	h.s.post(linkEvent{gen: h.gen, connected: connected, err: err})
}

func (h *linkHandler) OnServicesResolved(err error) {
	h.s.post(servicesEvent{gen: h.gen, err: err})
}

func (h *linkHandler) OnSubscribed(err error) {
	h.s.post(subscribedEvent{gen: h.gen, err: err})
}

func (h *linkHandler) OnNotification(data []byte, at time.Time) {
	h.s.enqueueFrame(inboundFrame{gen: h.gen, frame: telemetry.NewFrame(data, at)})
}

var _ device.LinkHandler = (*linkHandler)(nil)

func (s *Session) connectConfigured() error {
	if err := s.commandErr(); err != nil {
		return err
	}
	address := s.options().TargetAddress
	if address == "" {
		err := fmt.Errorf("connect: %w", ErrNoTarget)
		if st := s.State(); st == Idle || st == Disconnected || st == Error {
			s.transition(Error, err)
		}
		return s.reject(err)
	}
	return s.connect(address)
}

func (s *Session) connect(address string) error {
	if err := s.commandErr(); err != nil {
		return err
	}
	if address == "" {
		return s.reject(fmt.Errorf("connect: empty address"))
	}

	switch state := s.State(); state {
	case Connecting:
		return s.reject(&AlreadyInProgressError{Op: "connect", Address: s.Status().Address})
	case DiscoveringServices, Subscribing, Streaming:
		return s.reject(&InvalidStateError{Op: "connect", State: state})
	}

	s.linkGen++
	gen := s.linkGen
	s.linkActive = true
	s.address = address

	if !s.transition(Connecting, nil) {
		s.linkActive = false
		return &InvalidStateError{Op: "connect", State: s.State()}
	}
	s.logger.WithField("address", address).Info("Connecting")

	if err := s.transport.Connect(s.ctx, address, &linkHandler{s: s, gen: gen}); err != nil {
		err = device.NewTransportError("connect", err)
		s.logger.WithError(err).WithField("address", address).Error("Failed to start connection")
		s.transition(Error, err)
		return err
	}

	timeout := s.options().ConnectTimeout
	s.connectTimer = time.AfterFunc(timeout, func() { s.post(connectTimeoutEvent{gen: gen}) })
	return nil
}

func (s *Session) disconnect() error {
	switch s.State() {
	case Idle, Disconnected:
		return nil
	}
	s.transition(Disconnected, nil)
	return nil
}

func (s *Session) onLinkChange(ev linkEvent) {
	if ev.gen != s.linkGen || !s.linkActive {
		return
	}
	state := s.State()

	if ev.connected {
		if state != Connecting {
			return
		}
		s.linkUp = true
		s.alerts.ConnectionChanged(true)
		s.transition(DiscoveringServices, nil)

		opts := s.options()
		if err := s.transport.DiscoverServices(opts.ServiceUUID, opts.CharacteristicUUID); err != nil {
			s.failLink("discover services", err)
		}
		return
	}

	switch {
	case state == Connecting && ev.err != nil:
		s.failLink("connect", ev.err)
	default:
		if ev.err != nil {
			s.logger.WithError(ev.err).Warn("Link lost")
		}
		s.transition(Disconnected, nil)
	}
}

func (s *Session) onServicesResolved(ev servicesEvent) {
	if ev.gen != s.linkGen || s.State() != DiscoveringServices {
		return
	}
	if ev.err != nil {
		s.failLink("discover services", ev.err)
		return
	}

	s.transition(Subscribing, nil)

	opts := s.options()
	if err := s.transport.Subscribe(opts.ServiceUUID, opts.CharacteristicUUID); err != nil {
		s.failLink("subscribe", err)
	}
}

func (s *Session) onSubscribed(ev subscribedEvent) {
	if ev.gen != s.linkGen || s.State() != Subscribing {
		return
	}
	if ev.err != nil {
		s.failLink("subscribe", ev.err)
		return
	}
	s.transition(Streaming, nil)
}

func (s *Session) onConnectTimeout(ev connectTimeoutEvent) {
	if ev.gen != s.linkGen {
		return
	}
	switch s.State() {
	case Connecting, DiscoveringServices, Subscribing:
		s.failLink("connect", fmt.Errorf("no stream after %s: %w", s.options().ConnectTimeout, device.ErrTimeout))
	}
}

func (s *Session) failLink(op string, err error) {
	err = device.NewTransportError(op, err)
	s.logger.WithError(err).WithField("address", s.Status().Address).Error("Connection failed")
	s.transition(Error, err)
}

// enqueueFrame is called on transport goroutines. The ring keeps the newest frames when
// the actor falls behind.
func (s *Session) enqueueFrame(f inboundFrame) {
	overwrites, err := s.frames.EnqueueM(f)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to queue frame")
		return
	}
	if overwrites > 0 {
		s.logger.WithField("dropped", overwrites).Debug("Frame queue overrun")
	}
	select {
	case s.frameWake <- struct{}{}:
	default:
	}
}

func (s *Session) drainFrames() {
	for !s.frames.IsEmpty() {
		f, err := s.frames.Dequeue()
		if err != nil {
			return
		}
		if f.gen != s.linkGen || s.State() != Streaming {
			continue
		}
		s.processFrame(f.frame)
	}
}

func (s *Session) processFrame(frame telemetry.Frame) {
	opts := s.options()
	r := telemetry.Decode(frame, opts.Patterns)

	s.logger.WithFields(logrus.Fields{
		"kind":   r.Kind,
		"length": r.Length,
		"raw":    r.RawHex,
	}).Debug("Frame decoded")

	for _, c := range s.tracker.Observe(r) {
		switch c.Field {
		case monitor.FieldBattery:
			s.alerts.BatteryChanged(c.Current)
		case monitor.FieldAssistMode:
			s.alerts.AssistModeChanged(opts.AssistLabels.Label(c.Current))
		}
	}

	entry := monitor.NewLogEntry(r, opts.AssistLabels)
	s.log.Append(entry)

	s.mu.Lock()
	s.reading = telemetry.Some(r)
	s.mu.Unlock()

	s.hub.publish(Update{Kind: UpdateReading, Reading: r})
	s.hub.publish(Update{Kind: UpdateLog, LogEntry: entry})
}
