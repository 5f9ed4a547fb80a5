package session

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bikemon/internal/device"
)

type sightingEvent struct {
	gen uint64
	ref device.PeripheralRef
}

type scanDoneEvent struct {
	gen uint64
	err error
}

type scanTimeoutEvent struct {
	gen uint64
}

func (s *Session) startScan() error {
	if err := s.commandErr(); err != nil {
		return err
	}

	switch state := s.State(); state {
	case Scanning:
		return s.reject(&AlreadyInProgressError{Op: "scan"})
	case Idle, Disconnected, Error:
	default:
		return s.reject(&InvalidStateError{Op: "start scan", State: state})
	}

	s.scanGen++
	gen := s.scanGen
	s.registry.Begin()
	s.hub.publish(Update{Kind: UpdateScanResults})

	err := s.transport.StartDiscovery(s.ctx,
		func(ref device.PeripheralRef) { s.post(sightingEvent{gen: gen, ref: ref}) },
		func(err error) { s.post(scanDoneEvent{gen: gen, err: err}) },
	)
	if err != nil {
		s.registry.End()
		err = device.NewTransportError("scan", err)
		s.logger.WithError(err).Error("Failed to start discovery")
		s.transition(Error, err)
		return err
	}

	s.transition(Scanning, nil)

	timeout := s.options().ScanTimeout
	s.scanTimer = time.AfterFunc(timeout, func() { s.post(scanTimeoutEvent{gen: gen}) })
	s.logger.WithField("timeout", timeout).Info("Scanning for peripherals")
	return nil
}

func (s *Session) stopScan() error {
	if s.State() != Scanning {
		return nil
	}
	s.transition(Disconnected, nil)
	return nil
}

// leaveScanning runs on every exit from Scanning. Bumping the generation turns any
// sighting, completion or timer already queued for this scan into a no-op.
func (s *Session) leaveScanning() {
	s.stopScanTimer()
	s.scanGen++
	if err := s.transport.StopDiscovery(); err != nil {
		s.logger.WithError(err).Warn("Failed to stop discovery")
	}
	s.registry.End()
	s.hub.publish(Update{Kind: UpdateScanResults, Results: s.registry.Results()})
}

func (s *Session) onSighting(ev sightingEvent) {
	if ev.gen != s.scanGen || s.State() != Scanning {
		return
	}
	if s.registry.Observe(ev.ref) {
		s.logger.WithFields(logrus.Fields{
			"address": ev.ref.Address,
			"name":    ev.ref.Name,
			"rssi":    ev.ref.RSSI,
		}).Debug("Peripheral discovered")
		s.hub.publish(Update{Kind: UpdateScanResults, Results: s.registry.Results()})
	}
}

func (s *Session) onScanTimeout(ev scanTimeoutEvent) {
	if ev.gen != s.scanGen || s.State() != Scanning {
		return
	}
	s.logger.WithField("found", s.registry.Len()).Info("Scan window elapsed")
	s.transition(Disconnected, nil)
}

func (s *Session) onScanDone(ev scanDoneEvent) {
	if ev.gen != s.scanGen || s.State() != Scanning {
		return
	}
	if ev.err == nil {
		s.transition(Disconnected, nil)
		return
	}
	err := device.NewTransportError("scan", ev.err)
	s.logger.WithError(err).Error("Discovery failed")
	s.transition(Error, err)
}
