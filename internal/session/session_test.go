//go:build test

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/srg/bikemon/internal/device"
	"github.com/srg/bikemon/internal/monitor"
	"github.com/srg/bikemon/internal/testutils"
	"github.com/srg/bikemon/pkg/config"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const (
	bikeAddress = "C0:FF:EE:00:00:01"
	waitFor     = 2 * time.Second
	tick        = 5 * time.Millisecond
)

type SessionTestSuite struct {
	suite.Suite

	ctx       context.Context
	helper    *testutils.TestHelper
	transport *testutils.MockTransport
	sink      *testutils.RecordingSink
	sess      *Session
}

func (s *SessionTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.helper = testutils.NewTestHelper(s.T())
	s.transport = testutils.NewMockTransport()
	s.sink = testutils.NewRecordingSink()

	opts := validOptions()
	opts.ScanTimeout = time.Hour
	opts.ConnectTimeout = time.Hour
	s.sess = s.newSession(s.transport, opts)
	s.Require().NoError(s.sess.Start(s.ctx))
}

func (s *SessionTestSuite) TearDownTest() {
	if s.sess != nil {
		s.NoError(s.sess.Close())
	}
}

func (s *SessionTestSuite) newSession(tr device.Transport, opts Options) *Session {
	return New(tr, opts, s.sink, s.helper.Logger)
}

// flush waits until every message queued before it has been handled by the actor.
func (s *SessionTestSuite) flush() {
	s.Require().NoError(s.sess.do(s.ctx, func() error { return nil }))
}

func (s *SessionTestSuite) waitState(want State) {
	s.Require().Eventually(func() bool { return s.sess.State() == want }, waitFor, tick,
		"session MUST reach %s, still %s", want, s.sess.Status())
}

func (s *SessionTestSuite) waitLog(n int) {
	s.Require().Eventually(func() bool { return len(s.sess.Log()) == n }, waitFor, tick,
		"log MUST hold %d entries", n)
}

func (s *SessionTestSuite) stream() {
	s.Require().NoError(s.sess.Connect(s.ctx, bikeAddress))
	s.transport.EmitLinkUp()
	s.waitState(Streaming)
}

func longFrame(battery, assist byte) []byte {
	data := make([]byte, 20)
	copy(data[2:], []byte{0x18, 0x02, battery})
	copy(data[9:], []byte{0x30, 0x04, assist})
	return data
}

func drainUpdates(w *Watcher) []Update {
	var out []Update
	for {
		select {
		case u, ok := <-w.C():
			if !ok {
				return out
			}
			out = append(out, u)
		default:
			return out
		}
	}
}

func statesOf(updates []Update) []State {
	var out []State
	for _, u := range updates {
		if u.Kind == UpdateState {
			out = append(out, u.Status.State)
		}
	}
	return out
}

func (s *SessionTestSuite) TestConnect_FullFlowReachesStreaming() {
	// GOAL: verify the happy path walks every intermediate state in order
	//
	// TEST SCENARIO: connect → transport connects → services resolve → subscription acknowledged

	w := s.sess.Watch(0)
	defer w.Close()

	s.stream()
	s.flush()

	s.Equal([]State{Connecting, DiscoveringServices, Subscribing, Streaming}, statesOf(drainUpdates(w)))
	s.Equal(bikeAddress, s.transport.Address())
	s.Equal(bikeAddress, s.sess.Status().Address)
	s.transport.AssertCalled(s.T(), "DiscoverServices", validOptions().ServiceUUID, validOptions().CharacteristicUUID)
	s.transport.AssertCalled(s.T(), "Subscribe", validOptions().ServiceUUID, validOptions().CharacteristicUUID)
	s.Equal([]bool{true}, s.sink.Connections(), "connection alert MUST fire once when the link comes up")
}

func (s *SessionTestSuite) TestStreaming_FramesBecomeReadingsAndLogEntries() {
	s.stream()

	s.transport.EmitNotification([]byte{0x01, 0x2C, 0x30, 0x04, 0x02, 0x00})
	s.waitLog(1)

	r, ok := s.sess.Reading().Get()
	s.Require().True(ok, "reading MUST be set after a frame")
	s.Equal(30.0, r.Speed.OrElse(-1))
	s.Equal(2, r.AssistMode.OrElse(-1))

	entry := s.sess.Log()[0]
	s.Equal(6, entry.Length)
	s.Equal("01-2C-30-04-02-00", entry.RawHex)
	s.Empty(s.sink.Batteries(), "first reading MUST NOT fire a change")
	s.Empty(s.sink.AssistModes(), "first reading MUST NOT fire a change")
}

func (s *SessionTestSuite) TestStreaming_ChangesFireAlerts() {
	s.stream()

	frames := [][]byte{
		longFrame(85, 2),
		longFrame(85, 2),
		longFrame(84, 2),
		{0x01, 0x2C, 0x30, 0x04, 0x04, 0x00}, // short frame: assist only
		longFrame(84, 4),
		longFrame(83, 1),
	}
	for _, f := range frames {
		s.transport.EmitNotification(f)
	}
	s.waitLog(len(frames))

	s.Equal([]int{84, 83}, s.sink.Batteries())
	s.Equal([]string{"TURBO", "ECO"}, s.sink.AssistModes())
}

func (s *SessionTestSuite) TestStreaming_FramesBeforeSubscriptionAreDropped() {
	s.Require().NoError(s.sess.Connect(s.ctx, bikeAddress))
	s.transport.EmitConnected()
	s.transport.EmitNotification(longFrame(50, 1))
	s.waitState(DiscoveringServices)
	s.flush()

	s.transport.EmitServicesResolved(nil)
	s.transport.EmitSubscribed(nil)
	s.waitState(Streaming)
	s.transport.EmitNotification(longFrame(51, 1))
	s.waitLog(1)
	s.flush()

	s.Len(s.sess.Log(), 1, "frames before streaming MUST NOT reach the decoder")
	r, _ := s.sess.Reading().Get()
	s.Equal(51, r.Battery.OrElse(-1))
}

func (s *SessionTestSuite) TestStreaming_LogKeepsNewestFifty() {
	s.stream()

	for i := 0; i < monitor.LogCapacity+1; i++ {
		s.transport.EmitNotification([]byte{byte(i), 0xEE})
	}

	s.Require().Eventually(func() bool {
		log := s.sess.Log()
		return len(log) == monitor.LogCapacity && log[0].RawHex == "32-EE"
	}, waitFor, tick, "log MUST hold the newest %d frames", monitor.LogCapacity)

	log := s.sess.Log()
	s.Equal("01-EE", log[len(log)-1].RawHex, "oldest frame MUST be evicted first")
}

func (s *SessionTestSuite) TestClearLog() {
	s.stream()
	s.transport.EmitNotification([]byte{0x01})
	s.waitLog(1)

	s.Require().NoError(s.sess.ClearLog(s.ctx))

	s.Empty(s.sess.Log())
}

func (s *SessionTestSuite) TestConnect_WhileConnectingIsRejected() {
	// GOAL: a second connect never supersedes the pending one

	s.Require().NoError(s.sess.Connect(s.ctx, bikeAddress))

	err := s.sess.Connect(s.ctx, "AA:AA:AA:AA:AA:AA")

	var inProgress *AlreadyInProgressError
	s.Require().ErrorAs(err, &inProgress)
	s.Equal(bikeAddress, inProgress.Address)
	s.Equal(Connecting, s.sess.State())
	s.Equal(1, s.transport.Count("Connect"), "transport MUST see only the first connect")
	s.Equal(bikeAddress, s.sess.Status().Address)
}

func (s *SessionTestSuite) TestConnect_WhileStreamingIsRejected() {
	s.stream()

	err := s.sess.Connect(s.ctx, "AA:AA:AA:AA:AA:AA")

	var invalid *InvalidStateError
	s.Require().ErrorAs(err, &invalid)
	s.Equal(Streaming, invalid.State)
	s.Equal(Streaming, s.sess.State())
}

func (s *SessionTestSuite) TestConnect_EmptyAddress() {
	s.Error(s.sess.Connect(s.ctx, ""))
	s.Equal(Idle, s.sess.State())
	s.Zero(s.transport.Count("Connect"))
}

func (s *SessionTestSuite) TestConnect_TransportRefusesSynchronously() {
	tr := testutils.NewMockTransport(func(m *testutils.MockTransport) {
		m.On("Connect", mock.Anything, bikeAddress, mock.Anything).Return(device.ErrBluetoothOff).Once()
	})
	sess := s.newSession(tr, validOptions())
	s.Require().NoError(sess.Start(s.ctx))
	defer sess.Close()

	err := sess.Connect(s.ctx, bikeAddress)

	s.ErrorIs(err, device.ErrBluetoothOff)
	s.Equal(Error, sess.State())
	s.ErrorIs(sess.Status().Reason, device.ErrBluetoothOff)
	s.Equal(1, tr.Count("Disconnect"), "a failed attempt MUST still release the handle")

	// retry from Error is allowed
	s.Require().NoError(sess.Connect(s.ctx, bikeAddress))
	s.Equal(Connecting, sess.State())
}

func (s *SessionTestSuite) TestConnect_FailureMovesToErrorAndAllowsRetry() {
	s.Require().NoError(s.sess.Connect(s.ctx, bikeAddress))

	s.transport.EmitDisconnected(errors.New("connection refused"))
	s.waitState(Error)

	var te *device.TransportError
	s.Require().ErrorAs(s.sess.Status().Reason, &te)
	s.Equal("connect", te.Op)
	s.Equal(1, s.transport.Count("Disconnect"))
	s.Empty(s.sink.Connections(), "link never came up, no alert MUST fire")

	s.Require().NoError(s.sess.Connect(s.ctx, bikeAddress))
	s.Equal(Connecting, s.sess.State())
	s.Equal(2, s.transport.Count("Connect"))
}

func (s *SessionTestSuite) TestDiscovery_MissingCharacteristicMovesToError() {
	s.Require().NoError(s.sess.Connect(s.ctx, bikeAddress))
	s.transport.EmitConnected()
	s.transport.EmitServicesResolved(&device.NotFoundError{Resource: "characteristic", UUIDs: []string{"fe02"}})
	s.waitState(Error)

	var nf *device.NotFoundError
	s.Require().ErrorAs(s.sess.Status().Reason, &nf)
	s.Equal("characteristic", nf.Resource)
	s.Equal(1, s.transport.Count("Disconnect"))
	s.Equal([]bool{true, false}, s.sink.Connections())
	s.Zero(s.transport.Count("Subscribe"))
}

func (s *SessionTestSuite) TestSubscribe_FailureMovesToError() {
	s.Require().NoError(s.sess.Connect(s.ctx, bikeAddress))
	s.transport.EmitConnected()
	s.transport.EmitServicesResolved(nil)
	s.transport.EmitSubscribed(errors.New("write descriptor failed"))
	s.waitState(Error)

	var te *device.TransportError
	s.Require().ErrorAs(s.sess.Status().Reason, &te)
	s.Equal("subscribe", te.Op)
}

func (s *SessionTestSuite) TestConnect_TimeoutMovesToError() {
	opts := validOptions()
	opts.ConnectTimeout = 30 * time.Millisecond
	s.Require().NoError(s.sess.Close())
	s.sess = s.newSession(s.transport, opts)
	s.Require().NoError(s.sess.Start(s.ctx))

	s.Require().NoError(s.sess.Connect(s.ctx, bikeAddress))
	s.transport.EmitConnected()
	s.waitState(Error)

	s.ErrorIs(s.sess.Status().Reason, device.ErrTimeout)
	s.Equal(1, s.transport.Count("Disconnect"))
}

func (s *SessionTestSuite) TestConnect_TimeoutDoesNotFireOnceStreaming() {
	opts := validOptions()
	opts.ConnectTimeout = 30 * time.Millisecond
	s.Require().NoError(s.sess.Close())
	s.sess = s.newSession(s.transport, opts)
	s.Require().NoError(s.sess.Start(s.ctx))

	s.stream()
	time.Sleep(80 * time.Millisecond)
	s.flush()

	s.Equal(Streaming, s.sess.State())
}

func (s *SessionTestSuite) TestDisconnect_IsIdempotent() {
	// GOAL: the transport handle is released exactly once however often disconnect is asked

	s.stream()
	s.transport.EmitNotification(longFrame(70, 1))
	s.waitLog(1)

	s.Require().NoError(s.sess.Disconnect(s.ctx))
	s.Require().NoError(s.sess.Disconnect(s.ctx))

	s.Equal(Disconnected, s.sess.State())
	s.Equal(1, s.transport.Count("Disconnect"), "transport MUST be disconnected exactly once")
	s.False(s.sess.Reading().IsSet(), "reading MUST be cleared on disconnect")
	s.Equal([]bool{true, false}, s.sink.Connections())
	s.Len(s.sess.Log(), 1, "log survives the link")
}

func (s *SessionTestSuite) TestDisconnect_FromIdleIsNoop() {
	s.Require().NoError(s.sess.Disconnect(s.ctx))

	s.Equal(Idle, s.sess.State())
	s.Zero(s.transport.Count("Disconnect"))
}

func (s *SessionTestSuite) TestDisconnect_DuringConnectIgnoresLateCallbacks() {
	// GOAL: a connect completing after the user gave up must not revive the session
	//
	// TEST SCENARIO: connect → disconnect → transport reports connected anyway → remains disconnected

	s.Require().NoError(s.sess.Connect(s.ctx, bikeAddress))
	s.Require().NoError(s.sess.Disconnect(s.ctx))

	s.transport.EmitLinkUp()
	s.transport.EmitNotification(longFrame(50, 1))
	s.flush()

	s.Equal(Disconnected, s.sess.State())
	s.Equal(1, s.transport.Count("Disconnect"))
	s.Zero(s.transport.Count("DiscoverServices"))
	s.Empty(s.sess.Log())
	s.Empty(s.sink.Connections())
}

func (s *SessionTestSuite) TestLinkLoss_WhileStreaming() {
	s.stream()

	s.transport.EmitDisconnected(device.ErrNotConnected)
	s.waitState(Disconnected)

	s.Equal(1, s.transport.Count("Disconnect"))
	s.Nil(s.sess.Status().Reason)
	s.Equal([]bool{true, false}, s.sink.Connections())

	// a second report of the same loss is stale
	s.transport.EmitDisconnected(device.ErrNotConnected)
	s.flush()
	s.Equal(1, s.transport.Count("Disconnect"))
}

func (s *SessionTestSuite) TestBaseline_ResetsOnEveryNewStream() {
	// GOAL: the first frame of a new link never compares against the previous link
	//
	// TEST SCENARIO: 80 → 79 fires; link lost; reconnect; 50 does not fire; 49 fires

	s.stream()
	s.transport.EmitNotification(longFrame(80, 1))
	s.transport.EmitNotification(longFrame(79, 1))
	s.waitLog(2)
	s.Equal([]int{79}, s.sink.Batteries())

	s.transport.EmitDisconnected(nil)
	s.waitState(Disconnected)

	s.stream()
	s.transport.EmitNotification(longFrame(50, 3))
	s.waitLog(3)
	s.Equal([]int{79}, s.sink.Batteries(), "first frame after reconnect MUST NOT fire")
	s.Empty(s.sink.AssistModes())

	s.transport.EmitNotification(longFrame(49, 3))
	s.waitLog(4)
	s.Equal([]int{79, 49}, s.sink.Batteries())
}

func (s *SessionTestSuite) TestScan_RegistryRanksAndDeduplicates() {
	// GOAL: the registry keeps one entry per address and publishes only new addresses
	//
	// TEST SCENARIO: AA:AA at -70, BB:BB at -50, AA:AA at -40 → [AA:AA -40, BB:BB -50]

	w := s.sess.Watch(0)
	defer w.Close()

	s.Require().NoError(s.sess.StartScan(s.ctx))
	s.Equal(Scanning, s.sess.State())

	s.transport.EmitSighting("AA:AA", "Bosch eBike", -70)
	s.transport.EmitSighting("BB:BB", "", -50)
	s.transport.EmitSighting("AA:AA", "", -40)
	s.flush()

	results := s.sess.ScanResults()
	s.Require().Len(results, 2)
	s.Equal(device.PeripheralRef{Address: "AA:AA", Name: "Bosch eBike", RSSI: -40}, results[0])
	s.Equal(device.PeripheralRef{Address: "BB:BB", RSSI: -50}, results[1])

	var published int
	for _, u := range drainUpdates(w) {
		if u.Kind == UpdateScanResults && len(u.Results) > 0 {
			published++
		}
	}
	s.Equal(2, published, "results MUST be published once per new address")
}

func (s *SessionTestSuite) TestScan_StopFreezesResults() {
	s.Require().NoError(s.sess.StartScan(s.ctx))
	s.transport.EmitSighting("AA:AA", "", -60)
	s.flush()

	s.Require().NoError(s.sess.StopScan(s.ctx))
	s.transport.EmitSighting("CC:CC", "", -30)
	s.flush()

	s.Equal(Disconnected, s.sess.State())
	s.Equal(1, s.transport.Count("StopDiscovery"))
	s.Len(s.sess.ScanResults(), 1, "sightings after stop MUST be ignored")
}

func (s *SessionTestSuite) TestScan_StartWhileScanningIsRejected() {
	s.Require().NoError(s.sess.StartScan(s.ctx))

	var inProgress *AlreadyInProgressError
	s.ErrorAs(s.sess.StartScan(s.ctx), &inProgress)
	s.Equal(1, s.transport.Count("StartDiscovery"))
}

func (s *SessionTestSuite) TestScan_StartWhileStreamingIsRejected() {
	s.stream()

	var invalid *InvalidStateError
	s.Require().ErrorAs(s.sess.StartScan(s.ctx), &invalid)
	s.Equal("start scan", invalid.Op)
	s.Equal(Streaming, s.sess.State())
	s.Zero(s.transport.Count("StartDiscovery"))
}

func (s *SessionTestSuite) TestScan_StopOutsideScanningIsNoop() {
	s.Require().NoError(s.sess.StopScan(s.ctx))

	s.Equal(Idle, s.sess.State())
	s.Zero(s.transport.Count("StopDiscovery"))
}

func (s *SessionTestSuite) TestScan_TimeoutEndsScan() {
	opts := validOptions()
	opts.ScanTimeout = 20 * time.Millisecond
	s.Require().NoError(s.sess.Close())
	s.sess = s.newSession(s.transport, opts)
	s.Require().NoError(s.sess.Start(s.ctx))

	s.Require().NoError(s.sess.StartScan(s.ctx))
	s.waitState(Disconnected)

	s.Equal(1, s.transport.Count("StopDiscovery"))
}

func (s *SessionTestSuite) TestScan_TimerIsNoopAfterStop() {
	// GOAL: a cancelled scan timer never acts on a later state
	//
	// TEST SCENARIO: scan (30ms) → stop → connect → wait past the timeout → still connecting

	opts := validOptions()
	opts.ScanTimeout = 30 * time.Millisecond
	s.Require().NoError(s.sess.Close())
	s.sess = s.newSession(s.transport, opts)
	s.Require().NoError(s.sess.Start(s.ctx))

	s.Require().NoError(s.sess.StartScan(s.ctx))
	s.Require().NoError(s.sess.StopScan(s.ctx))
	s.Require().NoError(s.sess.Connect(s.ctx, bikeAddress))

	time.Sleep(90 * time.Millisecond)
	s.flush()

	s.Equal(Connecting, s.sess.State())
	s.Equal(1, s.transport.Count("StopDiscovery"))
}

func (s *SessionTestSuite) TestScan_ConnectFromScanningStopsDiscovery() {
	s.Require().NoError(s.sess.StartScan(s.ctx))
	s.transport.EmitSighting(bikeAddress, "Bosch eBike", -55)
	s.flush()

	s.Require().NoError(s.sess.Connect(s.ctx, bikeAddress))

	s.Equal(Connecting, s.sess.State())
	s.Equal(1, s.transport.Count("StopDiscovery"))
	s.Len(s.sess.ScanResults(), 1, "results stay available for selection")
}

func (s *SessionTestSuite) TestScan_DiscoveryFailureMovesToError() {
	s.Require().NoError(s.sess.StartScan(s.ctx))

	s.transport.EmitScanDone(device.ErrBluetoothOff)
	s.waitState(Error)

	s.ErrorIs(s.sess.Status().Reason, device.ErrBluetoothOff)

	s.Require().NoError(s.sess.StartScan(s.ctx), "scan MUST be retryable from error")
	s.Equal(Scanning, s.sess.State())
}

func (s *SessionTestSuite) TestStart_PermissionFailure() {
	perm := &device.PermissionError{Capability: "bluetooth", Err: errors.New("denied")}
	tr := testutils.NewMockTransport(func(m *testutils.MockTransport) {
		m.On("Enable").Return(perm).Once()
	})
	sess := s.newSession(tr, validOptions())
	defer sess.Close()

	err := sess.Start(s.ctx)

	s.Require().ErrorAs(err, new(*device.PermissionError))
	s.Equal(Error, sess.State())
	s.ErrorIs(sess.StartScan(s.ctx), ErrNotStarted, "session MUST NOT start")
	s.Nil(sess.Done())

	// the user fixed the permission; the second enable succeeds
	s.Require().NoError(sess.Start(s.ctx))
	s.Equal(Idle, sess.State())
}

func (s *SessionTestSuite) TestStart_InvalidOptions() {
	sess := s.newSession(s.transport, Options{})
	defer sess.Close()

	err := sess.Start(s.ctx)

	var cfgErr *config.ConfigurationError
	s.Require().ErrorAs(err, &cfgErr)
	s.NotEmpty(cfgErr.Reasons)
	s.Equal(Error, sess.State())
	s.ErrorIs(sess.StartScan(s.ctx), config.ErrInvalid)
	s.ErrorIs(sess.Connect(s.ctx, bikeAddress), config.ErrInvalid)
	s.Zero(s.transport.Count("StartDiscovery"))

	s.Require().NoError(sess.Reconfigure(s.ctx, validOptions()))
	s.Equal(Idle, sess.State())
	s.NoError(sess.StartScan(s.ctx))
}

func (s *SessionTestSuite) TestReconfigure_RejectedWhileLinked() {
	s.stream()

	var invalid *InvalidStateError
	s.ErrorAs(s.sess.Reconfigure(s.ctx, validOptions()), &invalid)
}

func (s *SessionTestSuite) TestReconfigure_InvalidOptionsMoveToError() {
	err := s.sess.Reconfigure(s.ctx, Options{})

	s.ErrorIs(err, config.ErrInvalid)
	s.Equal(Error, s.sess.State())
	s.ErrorIs(s.sess.StartScan(s.ctx), config.ErrInvalid)
}

func (s *SessionTestSuite) TestConnectConfigured() {
	s.Run("without address", func() {
		err := s.sess.ConnectConfigured(s.ctx)

		s.ErrorIs(err, ErrNoTarget)
		s.Equal(Error, s.sess.State())
	})

	s.Run("with address", func() {
		opts := validOptions()
		opts.TargetName = "Commuter"
		opts.TargetAddress = bikeAddress
		s.Require().NoError(s.sess.Reconfigure(s.ctx, opts))
		s.Equal(Target{Name: "Commuter", Address: bikeAddress}, s.sess.Target())

		s.Require().NoError(s.sess.ConnectConfigured(s.ctx))

		s.Equal(Connecting, s.sess.State())
		s.Equal(bikeAddress, s.transport.Address())
	})
}

func (s *SessionTestSuite) TestSnapshot_JSON() {
	s.stream()
	s.transport.EmitNotification([]byte{0x01, 0x2C, 0x30, 0x04, 0x02, 0x00})
	s.waitLog(1)

	testutils.NewJSONAsserter(s.T()).
		WithOptions(testutils.WithIgnoredFields("captured_at", "timestamp")).
		Assert(testutils.MustJSON(s.sess.Snapshot()), `{
			"status": {"state": "streaming", "address": "C0:FF:EE:00:00:01"},
			"reading": {
				"kind": "short",
				"battery": null,
				"assist_mode": 2,
				"speed_kmh": 30,
				"raw": "01-2C-30-04-02-00",
				"length": 6
			},
			"scan_results": [],
			"log": [{"length": 6, "raw": "01-2C-30-04-02-00", "summary": "<<PRESENCE>>"}],
			"target": {}
		}`)
}

func (s *SessionTestSuite) TestClose_TearsDownLinkAndWatchers() {
	s.stream()
	w := s.sess.Watch(4)

	s.Require().NoError(s.sess.Close())
	s.Require().NoError(s.sess.Close())

	s.Equal(1, s.transport.Count("Disconnect"))
	s.Equal([]bool{true, false}, s.sink.Connections())
	s.ErrorIs(s.sess.StartScan(s.ctx), ErrClosed)
	s.ErrorIs(s.sess.Start(s.ctx), ErrClosed)

	drainUpdates(w)
	s.True(w.ch.Closed(), "watcher MUST be closed with the session")

	late := s.sess.Watch(1)
	_, ok := <-late.C()
	s.False(ok, "watching a closed session MUST yield a closed stream")
	s.sess = nil
}

func (s *SessionTestSuite) TestWatch_CloseDetaches() {
	w := s.sess.Watch(1)
	s.Equal(1, s.sess.hub.len())

	w.Close()

	s.Zero(s.sess.hub.len())
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}
