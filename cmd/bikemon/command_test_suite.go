//go:build test

package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bikemon/internal/device"
	"github.com/srg/bikemon/internal/devicefactory"
	"github.com/srg/bikemon/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const (
	// TestBikeAddress is bike.address in testdata/config.yaml
	TestBikeAddress = "C0:FF:EE:00:00:01"

	commandTimeout = 5 * time.Second
	pollInterval   = 5 * time.Millisecond
)

// syncBuffer is a bytes.Buffer that the test can read while the command writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// runningCommand is a command executing in the background.
type runningCommand struct {
	Stdout *syncBuffer
	Stderr *syncBuffer
	cancel context.CancelFunc
	done   chan error
}

// CommandTestSuite replaces the transport factory with a MockTransport for every test.
// All cmd/bikemon suites that talk to a bike should embed it.
type CommandTestSuite struct {
	suite.Suite

	Transport *testutils.MockTransport

	originalFactory func(string, *logrus.Logger) (device.Transport, error)
}

func (s *CommandTestSuite) SetupTest() {
	s.Transport = testutils.NewMockTransport()

	s.originalFactory = devicefactory.TransportFactory
	devicefactory.TransportFactory = func(string, *logrus.Logger) (device.Transport, error) {
		return s.Transport, nil
	}
}

func (s *CommandTestSuite) TearDownTest() {
	devicefactory.TransportFactory = s.originalFactory
}

// ExecuteCommand runs a fresh root command with args and returns stdout and the error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	r := s.StartCommand(args...)
	err := s.Wait(r)
	return r.Stdout.String(), err
}

// StartCommand runs a fresh root command in the background.
func (s *CommandTestSuite) StartCommand(args ...string) *runningCommand {
	ctx, cancel := context.WithCancel(context.Background())
	r := &runningCommand{
		Stdout: &syncBuffer{},
		Stderr: &syncBuffer{},
		cancel: cancel,
		done:   make(chan error, 1),
	}

	cmd := newRootCmd()
	cmd.SetOut(r.Stdout)
	cmd.SetErr(r.Stderr)
	cmd.SetArgs(args)

	go func() {
		r.done <- cmd.ExecuteContext(ctx)
	}()
	return r
}

// Wait returns the command's error, failing the test if it does not finish in time.
func (s *CommandTestSuite) Wait(r *runningCommand) error {
	select {
	case err := <-r.done:
		r.cancel()
		return err
	case <-time.After(commandTimeout):
		r.cancel()
		s.FailNow("command did not finish", "stdout:\n%s\nstderr:\n%s", r.Stdout.String(), r.Stderr.String())
		return nil
	}
}

// WaitOutput waits until the command's stdout contains want.
func (s *CommandTestSuite) WaitOutput(r *runningCommand, want string) {
	s.Require().Eventually(func() bool {
		return strings.Contains(r.Stdout.String(), want)
	}, commandTimeout, pollInterval, "stdout MUST contain %q", want)
}

// WaitStderr waits until the command's stderr contains want.
func (s *CommandTestSuite) WaitStderr(r *runningCommand, want string) {
	s.Require().Eventually(func() bool {
		return strings.Contains(r.Stderr.String(), want)
	}, commandTimeout, pollInterval, "stderr MUST contain %q", want)
}

// WaitConnectCall waits until the command has handed a link handler to the transport.
func (s *CommandTestSuite) WaitConnectCall() {
	s.Require().Eventually(func() bool {
		return s.Transport.Handler() != nil
	}, commandTimeout, pollInterval, "Connect MUST be called")
}
