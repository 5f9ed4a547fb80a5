// Package telemetry decodes the drive unit's undocumented notification stream.
//
// The protocol carries no type tag, so frames are classified by length and fields are
// located by searching for configured byte patterns. Decoding is a pure function: it does
// no I/O, keeps no state and is safe to call from any goroutine.
package telemetry

import (
	"bytes"
	"time"
)

// Frame length classes.
const (
	ShortFrameMinLen = 6
	ShortFrameMaxLen = 7
	LongFrameMinLen  = 20
	LongFrameMaxLen  = 35
)

// Plausible ranges for decoded fields. Values outside these bounds are reported absent.
const (
	MaxBatteryPercent = 100
	MaxAssistMode     = 15
	MinSpeedKmh       = 0.0
	MaxSpeedKmh       = 60.0
)

// FrameKind is the length-derived class of a frame.
type FrameKind int

const (
	KindGeneric FrameKind = iota
	KindShort
	KindLong
)

func (k FrameKind) String() string {
	switch k {
	case KindShort:
		return "short"
	case KindLong:
		return "long"
	default:
		return "generic"
	}
}

// MarshalText renders the kind by name in JSON output.
func (k FrameKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ClassifyLength maps a frame length to its decode path.
func ClassifyLength(n int) FrameKind {
	switch {
	case n >= ShortFrameMinLen && n <= ShortFrameMaxLen:
		return KindShort
	case n >= LongFrameMinLen && n <= LongFrameMaxLen:
		return KindLong
	default:
		return KindGeneric
	}
}

// PatternConfig holds the two locator patterns for one session. Both slices are copied
// in and out, so a PatternConfig cannot be altered after construction.
type PatternConfig struct {
	assist  []byte
	battery []byte
}

// NewPatternConfig builds a PatternConfig from the assist and battery locator patterns.
func NewPatternConfig(assist, battery []byte) PatternConfig {
	return PatternConfig{
		assist:  bytes.Clone(assist),
		battery: bytes.Clone(battery),
	}
}

// AssistPattern returns a copy of the assist-mode locator.
func (p PatternConfig) AssistPattern() []byte {
	return bytes.Clone(p.assist)
}

// BatteryPattern returns a copy of the battery-level locator.
func (p PatternConfig) BatteryPattern() []byte {
	return bytes.Clone(p.battery)
}

// Equal reports whether both patterns match byte for byte.
func (p PatternConfig) Equal(other PatternConfig) bool {
	return bytes.Equal(p.assist, other.assist) && bytes.Equal(p.battery, other.battery)
}

// Reading is the decoded snapshot of a single frame. Absent fields were not found in the frame.
type Reading struct {
	Kind       FrameKind         `json:"kind"`
	Battery    Optional[int]     `json:"battery"`
	AssistMode Optional[int]     `json:"assist_mode"`
	Speed      Optional[float64] `json:"speed_kmh"`
	RawHex     string            `json:"raw"`
	Length     int               `json:"length"`
	CapturedAt time.Time         `json:"captured_at"`
}

// HasData reports whether any structured field was extracted.
func (r Reading) HasData() bool {
	return r.Battery.IsSet() || r.AssistMode.IsSet() || r.Speed.IsSet()
}

// Decode turns a frame into a Reading using the session's patterns.
//
//   - 6 or 7 bytes: assist mode by pattern, plus the speed heuristic. No battery.
//   - 20 to 35 bytes: battery and assist mode by pattern. No speed.
//   - anything else: no field extraction.
//
// The raw hex capture is attached on every path.
func Decode(frame Frame, patterns PatternConfig) Reading {
	r := Reading{
		Kind:       ClassifyLength(frame.Len()),
		RawHex:     frame.Hex(),
		Length:     frame.Len(),
		CapturedAt: frame.ReceivedAt(),
	}

	switch r.Kind {
	case KindShort:
		r.AssistMode = findAssistMode(frame.data, patterns.assist)
		r.Speed = findSpeed(frame.data)
	case KindLong:
		r.Battery = findBattery(frame.data, patterns.battery)
		r.AssistMode = findAssistMode(frame.data, patterns.assist)
	}

	return r
}

// FindPattern returns the first position where pattern occurs in data together with the
// byte immediately following the match. A match that ends on the last byte has no value
// and does not count; an empty pattern never matches.
func FindPattern(data, pattern []byte) (pos int, value byte, ok bool) {
	if len(pattern) == 0 || len(pattern) >= len(data) {
		return -1, 0, false
	}
	pos = bytes.Index(data[:len(data)-1], pattern)
	if pos < 0 {
		return -1, 0, false
	}
	return pos, data[pos+len(pattern)], true
}

func findBattery(data, pattern []byte) Optional[int] {
	_, v, ok := FindPattern(data, pattern)
	if !ok || int(v) > MaxBatteryPercent {
		return None[int]()
	}
	return Some(int(v))
}

func findAssistMode(data, pattern []byte) Optional[int] {
	_, v, ok := FindPattern(data, pattern)
	if !ok || int(v) > MaxAssistMode {
		return None[int]()
	}
	return Some(int(v))
}

// SpeedCandidates returns the raw speed candidates in priority order: big-endian bytes 0,1,
// little-endian bytes 1,0, then big-endian bytes 2,3. Each is scaled by 1/10 to km/h.
func SpeedCandidates(data []byte) []float64 {
	if len(data) < 4 {
		return nil
	}
	return []float64{
		float64(uint16(data[0])<<8|uint16(data[1])) / 10.0,
		float64(uint16(data[1])<<8|uint16(data[0])) / 10.0,
		float64(uint16(data[2])<<8|uint16(data[3])) / 10.0,
	}
}

// findSpeed accepts the first candidate inside [MinSpeedKmh, MaxSpeedKmh]. The candidate
// order and inclusive bounds are fixed legacy behavior observed on the reference hardware.
func findSpeed(data []byte) Optional[float64] {
	for _, kmh := range SpeedCandidates(data) {
		if kmh >= MinSpeedKmh && kmh <= MaxSpeedKmh {
			return Some(kmh)
		}
	}
	return None[float64]()
}
