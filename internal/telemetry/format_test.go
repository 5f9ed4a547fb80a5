package telemetry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssistLabels_Label(t *testing.T) {
	labels := DefaultAssistLabels.Merge(map[int]string{2: "TOUR+", 9: "EMTB"})

	assert.Equal(t, "OFF", labels.Label(0))
	assert.Equal(t, "TOUR+", labels.Label(2))
	assert.Equal(t, "EMTB", labels.Label(9))
	assert.Equal(t, "MODE 7", labels.Label(7))

	// the default table is not touched by Merge
	assert.Equal(t, "TOUR", DefaultAssistLabels.Label(2))
}

func TestAssistLabels_EmptyOverrideFallsBack(t *testing.T) {
	labels := AssistLabels{3: ""}

	assert.Equal(t, "SPORT", labels.Label(3))
}

func TestSummary(t *testing.T) {
	r := Reading{
		Battery:    Some(72),
		AssistMode: Some(4),
	}

	assert.Equal(t, "assist=TURBO battery=72% speed=--", DefaultAssistLabels.Summary(r))
	assert.Equal(t, "assist=-- battery=-- speed=12.5 km/h",
		DefaultAssistLabels.Summary(Reading{Speed: Some(12.5)}))
}

func TestHexString(t *testing.T) {
	assert.Equal(t, "", HexString(nil))
	assert.Equal(t, "0A", HexString([]byte{0x0a}))
	assert.Equal(t, "01-2C-FF", HexString([]byte{0x01, 0x2c, 0xff}))
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{in: "01-2C-FF", want: []byte{0x01, 0x2C, 0xFF}},
		{in: "01:2c:ff", want: []byte{0x01, 0x2C, 0xFF}},
		{in: " 01 2C FF ", want: []byte{0x01, 0x2C, 0xFF}},
		{in: "0x012CFF", want: []byte{0x01, 0x2C, 0xFF}},
		{in: "", wantErr: true},
		{in: "0G", wantErr: true},
		{in: "123", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHex(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseHex_RoundTripsHexString(t *testing.T) {
	data := []byte{0x00, 0x10, 0xAB, 0xFF}

	got, err := ParseHex(HexString(data))

	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestReading_JSON(t *testing.T) {
	r := Decode(NewFrame([]byte{0x01, 0x2C, 0x30, 0x04, 0x02, 0x00}, testTime), testPatterns)

	out, err := json.Marshal(r)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"kind": "short",
		"battery": null,
		"assist_mode": 2,
		"speed_kmh": 30,
		"raw": "01-2C-30-04-02-00",
		"length": 6,
		"captured_at": "2024-05-01T12:30:00Z"
	}`, string(out))
}

func TestOptional(t *testing.T) {
	var absent Optional[int]
	assert.False(t, absent.IsSet())
	assert.Equal(t, 5, absent.OrElse(5))

	zero := Some(0)
	v, ok := zero.Get()
	assert.True(t, ok)
	assert.Equal(t, 0, v)
	assert.NotEqual(t, absent, zero, "a present zero MUST differ from an absent value")

	var decoded Optional[int]
	require.NoError(t, json.Unmarshal([]byte("null"), &decoded))
	assert.False(t, decoded.IsSet())
	require.NoError(t, json.Unmarshal([]byte("42"), &decoded))
	assert.Equal(t, Some(42), decoded)
}
