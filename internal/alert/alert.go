// Package alert delivers user-facing notifications about the bike link and readings.
package alert

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// LowBatteryPercent is the level at and below which battery alerts are highlighted.
const LowBatteryPercent = 20

// Sink receives notification requests. Implementations must not block for long;
// wrap slow sinks in a Dispatcher.
type Sink interface {
	ConnectionChanged(connected bool)
	BatteryChanged(level int)
	AssistModeChanged(label string)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) ConnectionChanged(bool) {}
func (Nop) BatteryChanged(int) {}
func (Nop) AssistModeChanged(string) {}

// LogSink writes notifications to a logrus logger at Info level.
type LogSink struct {
	logger *logrus.Logger
}

// NewLogSink creates a LogSink. A nil logger means logrus.New().
func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) ConnectionChanged(connected bool) {
	s.logger.WithField("connected", connected).Info("Bike connection changed")
}

func (s *LogSink) BatteryChanged(level int) {
	entry := s.logger.WithField("battery", level)
	if level <= LowBatteryPercent {
		entry.Warn("Battery level low")
		return
	}
	entry.Info("Battery level changed")
}

func (s *LogSink) AssistModeChanged(label string) {
	s.logger.WithField("assist_mode", label).Info("Assist mode changed")
}

// ConsoleSink prints one line per notification, optionally colored.
type ConsoleSink struct {
	mu   sync.Mutex
	out  io.Writer
	good *color.Color
	bad  *color.Color
	warn *color.Color
	info *color.Color
}

// NewConsoleSink creates a ConsoleSink writing to out.
func NewConsoleSink(out io.Writer, colors bool) *ConsoleSink {
	s := &ConsoleSink{
		out:  out,
		good: color.New(color.FgGreen, color.Bold),
		bad:  color.New(color.FgRed, color.Bold),
		warn: color.New(color.FgYellow),
		info: color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{s.good, s.bad, s.warn, s.info} {
		if colors {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return s
}

func (s *ConsoleSink) printf(c *color.Color, format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.out, c.Sprintf(format, args...))
}

func (s *ConsoleSink) ConnectionChanged(connected bool) {
	if connected {
		s.printf(s.good, "[link] connected")
		return
	}
	s.printf(s.bad, "[link] disconnected")
}

func (s *ConsoleSink) BatteryChanged(level int) {
	if level <= LowBatteryPercent {
		s.printf(s.warn, "[battery] %d%% (low)", level)
		return
	}
	s.printf(s.info, "[battery] %d%%", level)
}

func (s *ConsoleSink) AssistModeChanged(label string) {
	s.printf(s.info, "[assist] %s", label)
}

type multi []Sink

// Multi fans every notification out to sinks in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) ConnectionChanged(connected bool) {
	for _, s := range m {
		s.ConnectionChanged(connected)
	}
}

func (m multi) BatteryChanged(level int) {
	for _, s := range m {
		s.BatteryChanged(level)
	}
}

func (m multi) AssistModeChanged(label string) {
	for _, s := range m {
		s.AssistModeChanged(label)
	}
}
