// Package session owns the lifecycle of one bike connection.
//
// A Session is an actor: commands from the presentation layer and callbacks from the
// transport are turned into messages and handled one at a time on a single goroutine, so
// the state, the change baseline and the log only ever have one writer. Observers read
// through the accessor methods or receive pushed updates from Watch.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/bikemon/internal/alert"
	"github.com/srg/bikemon/internal/device"
	"github.com/srg/bikemon/internal/groutine"
	"github.com/srg/bikemon/internal/monitor"
	"github.com/srg/bikemon/internal/registry"
	"github.com/srg/bikemon/internal/telemetry"
)

const (
	mailboxSize   = 64
	frameRingSize = 256
)

// Snapshot is a consistent copy of everything observers can see.
type Snapshot struct {
	Status  Status                                `json:"status"`
	Reading telemetry.Optional[telemetry.Reading] `json:"reading"`
	Results []device.PeripheralRef                `json:"scan_results"`
	Log     []monitor.LogEntry                    `json:"log"`
	Target  Target                                `json:"target"`
}

// Session drives a Transport through scan, connect, discovery and subscription, and
// decodes the resulting notification stream.
type Session struct {
	transport device.Transport
	alerts    alert.Sink
	logger    *logrus.Logger

	registry *registry.Registry
	log      *monitor.Log
	hub      *hub

	mailbox   chan any
	frames    mpmc.RichOverlappedRingBuffer[inboundFrame]
	frameWake chan struct{}

	mu      sync.RWMutex
	status  Status
	reading telemetry.Optional[telemetry.Reading]
	opts    Options

	// owned by the actor goroutine
	tracker      monitor.Tracker
	scanGen      uint64
	linkGen      uint64
	scanTimer    *time.Timer
	connectTimer *time.Timer
	linkActive   bool
	linkUp       bool
	address      string
	configErr    error

	startMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	done    <-chan struct{}
	started atomic.Bool
	closed  atomic.Bool
}

// New creates an idle session. A nil sink disables alerts; a nil logger means logrus.New().
func New(transport device.Transport, opts Options, sink alert.Sink, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	if sink == nil {
		sink = alert.Nop{}
	}
	return &Session{
		transport: transport,
		alerts:    sink,
		logger:    logger,
		registry:  registry.New(),
		log:       monitor.NewLog(),
		hub:       newHub(),
		mailbox:   make(chan any, mailboxSize),
		frames:    mpmc.NewOverlappedRingBuffer[inboundFrame](frameRingSize),
		frameWake: make(chan struct{}, 1),
		status:    Status{State: Idle},
		opts:      opts.withDefaults(),
	}
}

// Start enables the transport and starts the session actor.
//
// A transport that cannot be enabled leaves the session in Error and not started; Start
// may be called again. Invalid options start the actor in Error and the configuration
// error is returned; commands keep failing with it until Reconfigure succeeds.
func (s *Session) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.closed.Load() {
		return ErrClosed
	}
	if s.started.Load() {
		return nil
	}

	if err := s.transport.Enable(); err != nil {
		err = device.NewTransportError("enable", err)
		s.logger.WithError(err).Error("Failed to enable bluetooth")
		s.forceStatus(Status{State: Error, Reason: err})
		return err
	}

	cfgErr := s.opts.Validate()
	if cfgErr != nil {
		s.configErr = cfgErr
		s.logger.WithError(cfgErr).Error("Session configuration is invalid")
		s.forceStatus(Status{State: Error, Reason: cfgErr})
	} else if s.State() == Error {
		// a retried Start after a failed Enable
		s.forceStatus(Status{State: Idle})
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.done = groutine.Go(s.ctx, "session-actor", s.run)
	s.started.Store(true)

	s.logger.WithField("target", s.opts.TargetAddress).Info("Session started")
	return cfgErr
}

// Close stops the actor, tears down any link and closes every watcher. It is idempotent.
func (s *Session) Close() error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.closed.Swap(true) {
		return nil
	}
	if !s.started.Load() {
		s.hub.closeAll()
		return nil
	}
	s.cancel()
	<-s.done
	return nil
}

// Done is closed when the actor has stopped. It is nil before Start.
func (s *Session) Done() <-chan struct{} {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	return s.done
}

// StartScan clears the registry and scans for the configured scan timeout.
func (s *Session) StartScan(ctx context.Context) error {
	return s.do(ctx, s.startScan)
}

// StopScan ends a running scan. Outside Scanning it does nothing.
func (s *Session) StopScan(ctx context.Context) error {
	return s.do(ctx, s.stopScan)
}

// Connect starts a connection to address.
func (s *Session) Connect(ctx context.Context, address string) error {
	return s.do(ctx, func() error { return s.connect(address) })
}

// ConnectConfigured connects to the bike address from the options.
func (s *Session) ConnectConfigured(ctx context.Context) error {
	return s.do(ctx, s.connectConfigured)
}

// Disconnect tears down the link or stops the scan. From Idle or Disconnected it does nothing.
func (s *Session) Disconnect(ctx context.Context) error {
	return s.do(ctx, s.disconnect)
}

// ClearLog empties the frame log.
func (s *Session) ClearLog(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.log.Clear()
		s.hub.publish(Update{Kind: UpdateLog})
		return nil
	})
}

// Reconfigure replaces the options. It is only allowed while no scan or link is active.
func (s *Session) Reconfigure(ctx context.Context, opts Options) error {
	return s.do(ctx, func() error { return s.reconfigure(opts) })
}

// Status returns the current state and, in Error, its reason.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// State returns the current state.
func (s *Session) State() State {
	return s.Status().State
}

// Reading returns the last decoded reading of the current link, if any.
func (s *Session) Reading() telemetry.Optional[telemetry.Reading] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reading
}

// ScanResults returns the ranked peripherals of the latest scan.
func (s *Session) ScanResults() []device.PeripheralRef {
	return s.registry.Results()
}

// Log returns the frame log, newest first.
func (s *Session) Log() []monitor.LogEntry {
	return s.log.Entries()
}

// Target returns the configured bike.
func (s *Session) Target() Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Target{Name: s.opts.TargetName, Address: s.opts.TargetAddress}
}

// Labels returns the assist-mode labels in effect.
func (s *Session) Labels() telemetry.AssistLabels {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts.AssistLabels
}

// Snapshot returns every observable value at once.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		Status:  s.status,
		Reading: s.reading,
		Target:  Target{Name: s.opts.TargetName, Address: s.opts.TargetAddress},
	}
	s.mu.RUnlock()

	snap.Results = s.registry.Results()
	snap.Log = s.log.Entries()
	return snap
}

// Watch subscribes to pushed updates. buffer bounds the pending queue; zero means
// DefaultWatchBuffer.
func (s *Session) Watch(buffer int) *Watcher {
	return s.hub.add(buffer)
}

// command is a closure executed on the actor goroutine.
type command struct {
	fn    func() error
	reply chan error
}

func (s *Session) do(ctx context.Context, fn func() error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.started.Load() {
		return ErrNotStarted
	}

	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.mailbox <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// post delivers a transport event to the actor. It gives up once the session is closing.
func (s *Session) post(ev any) {
	select {
	case s.mailbox <- ev:
	case <-s.ctx.Done():
	}
}

func (s *Session) run(ctx context.Context) {
	defer s.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.mailbox:
			s.handle(msg)
		case <-s.frameWake:
			// state and subscription events queued ahead of the frames are applied first
			s.drainMailbox()
			s.drainFrames()
		}
	}
}

func (s *Session) drainMailbox() {
	for {
		select {
		case msg := <-s.mailbox:
			s.handle(msg)
		default:
			return
		}
	}
}

func (s *Session) handle(msg any) {
	switch m := msg.(type) {
	case command:
		m.reply <- m.fn()
	case sightingEvent:
		s.onSighting(m)
	case scanDoneEvent:
		s.onScanDone(m)
	case scanTimeoutEvent:
		s.onScanTimeout(m)
	case linkEvent:
		s.onLinkChange(m)
	case servicesEvent:
		s.onServicesResolved(m)
	case subscribedEvent:
		s.onSubscribed(m)
	case connectTimeoutEvent:
		s.onConnectTimeout(m)
	default:
		s.logger.WithField("message", fmt.Sprintf("%T", msg)).Warn("Unknown session message")
	}
}

func (s *Session) shutdown() {
	s.stopScanTimer()
	s.stopConnectTimer()

	if s.State() == Scanning {
		if err := s.transport.StopDiscovery(); err != nil {
			s.logger.WithError(err).Debug("Failed to stop discovery on shutdown")
		}
		s.registry.End()
	}
	if s.linkActive {
		s.linkActive = false
		if err := s.transport.Disconnect(); err != nil {
			s.logger.WithError(err).Debug("Failed to disconnect on shutdown")
		}
	}
	if s.linkUp {
		s.linkUp = false
		s.alerts.ConnectionChanged(false)
	}

	s.hub.closeAll()
	s.logger.Info("Session closed")
}

// commandErr returns the pending configuration error, which blocks every link command.
func (s *Session) commandErr() error {
	return s.configErr
}

func (s *Session) reconfigure(opts Options) error {
	state := s.State()
	if state != Idle && state != Disconnected && state != Error {
		return s.reject(&InvalidStateError{Op: "reconfigure", State: state})
	}

	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		s.configErr = err
		s.transition(Error, err)
		return err
	}

	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
	s.configErr = nil

	s.logger.WithField("target", opts.TargetAddress).Info("Session reconfigured")
	if state == Error {
		s.transition(Idle, nil)
	}
	return nil
}

func (s *Session) options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

func (s *Session) reject(err error) error {
	s.logger.WithError(err).WithField("state", s.State()).Warn("Session command rejected")
	return err
}

// transition moves to the next state and runs its entry and exit effects. Illegal edges
// are refused and logged.
func (s *Session) transition(to State, reason error) bool {
	from := s.State()

	if !CanTransition(from, to) {
		s.logger.WithFields(logrus.Fields{"from": from, "to": to}).Error("Illegal session transition refused")
		return false
	}

	if from == Scanning && to != Scanning {
		s.leaveScanning()
	}

	next := Status{State: to, Reason: reason}
	if to.linked() {
		next.Address = s.address
	}

	s.mu.Lock()
	s.status = next
	if to == Disconnected || to == Error {
		s.reading = telemetry.None[telemetry.Reading]()
	}
	s.mu.Unlock()

	switch to {
	case Streaming:
		s.stopConnectTimer()
		s.tracker.Reset()
	case Disconnected, Error:
		s.releaseLink()
	}

	entry := s.logger.WithFields(logrus.Fields{"from": from, "to": to})
	if reason != nil {
		entry = entry.WithError(reason)
	}
	entry.Info("Session state changed")

	s.hub.publish(Update{Kind: UpdateState, Status: next})
	return true
}

// forceStatus sets the status outside the transition table. Only used before the actor runs.
func (s *Session) forceStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	s.hub.publish(Update{Kind: UpdateState, Status: st})
}

// releaseLink drops the transport handle exactly once per link and invalidates every
// callback still in flight for it.
func (s *Session) releaseLink() {
	s.stopConnectTimer()

	if s.linkActive {
		s.linkActive = false
		s.linkGen++
		if err := s.transport.Disconnect(); err != nil {
			s.logger.WithError(err).Warn("Transport disconnect failed")
		}
	}
	if s.linkUp {
		s.linkUp = false
		s.alerts.ConnectionChanged(false)
	}
}

func (s *Session) stopScanTimer() {
	if s.scanTimer != nil {
		s.scanTimer.Stop()
		s.scanTimer = nil
	}
}

func (s *Session) stopConnectTimer() {
	if s.connectTimer != nil {
		s.connectTimer.Stop()
		s.connectTimer = nil
	}
}
