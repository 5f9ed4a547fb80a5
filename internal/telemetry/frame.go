package telemetry

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// HexSeparator joins the per-byte hex digits of a raw frame capture.
const HexSeparator = "-"

// Frame is one notification payload as received from the peripheral.
// The payload is copied on construction and never exposed for mutation.
type Frame struct {
	data       []byte
	receivedAt time.Time
}

// NewFrame copies data into a new Frame stamped with receivedAt.
func NewFrame(data []byte, receivedAt time.Time) Frame {
	buf := make([]byte, len(data))
	copy(buf, data)
	return Frame{data: buf, receivedAt: receivedAt}
}

// Len returns the payload length in bytes.
func (f Frame) Len() int {
	return len(f.data)
}

// Bytes returns a copy of the payload.
func (f Frame) Bytes() []byte {
	buf := make([]byte, len(f.data))
	copy(buf, f.data)
	return buf
}

// ReceivedAt returns the arrival timestamp.
func (f Frame) ReceivedAt() time.Time {
	return f.receivedAt
}

// Hex returns the payload as uppercase hex pairs joined by HexSeparator.
func (f Frame) Hex() string {
	return HexString(f.data)
}

// HexString renders b as uppercase hex pairs joined by HexSeparator, e.g. "01-2C-FF".
func HexString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.Grow(len(b)*3 - 1)
	for i, v := range b {
		if i > 0 {
			sb.WriteString(HexSeparator)
		}
		fmt.Fprintf(&sb, "%02X", v)
	}
	return sb.String()
}

// ParseHex parses a frame written as "01-2C-FF", "01:2C:FF", "01 2C FF" or "012CFF".
func ParseHex(s string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '-', ':', ' ', '\t', ',':
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	cleaned = strings.TrimPrefix(strings.TrimPrefix(cleaned, "0x"), "0X")

	if cleaned == "" {
		return nil, fmt.Errorf("empty frame")
	}
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex frame %q: %w", s, err)
	}
	return data, nil
}
