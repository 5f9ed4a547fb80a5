package monitor

import (
	"fmt"

	"github.com/srg/bikemon/internal/telemetry"
)

// Field identifies a tracked reading field.
type Field int

const (
	FieldBattery Field = iota
	FieldAssistMode
)

func (f Field) String() string {
	switch f {
	case FieldBattery:
		return "battery"
	case FieldAssistMode:
		return "assist_mode"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// Change is a tracked field taking a new value.
type Change struct {
	Field    Field
	Previous int
	Current  int
}

// Tracker compares each reading against the last value seen for battery and assist mode.
// A frame that does not carry a field leaves that field's baseline untouched; only Reset
// returns a baseline to unknown. Tracker is not safe for concurrent use.
type Tracker struct {
	battery telemetry.Optional[int]
	assist  telemetry.Optional[int]
}

// Observe returns the changes r introduces and advances the baseline.
// Nothing fires while a baseline is still unknown.
func (t *Tracker) Observe(r telemetry.Reading) []Change {
	var changes []Change

	if c, ok := observe(&t.battery, r.Battery, FieldBattery); ok {
		changes = append(changes, c)
	}
	if c, ok := observe(&t.assist, r.AssistMode, FieldAssistMode); ok {
		changes = append(changes, c)
	}

	return changes
}

func observe(baseline *telemetry.Optional[int], current telemetry.Optional[int], f Field) (Change, bool) {
	cur, present := current.Get()
	if !present {
		return Change{}, false
	}
	prev, known := baseline.Get()
	*baseline = current
	if !known || prev == cur {
		return Change{}, false
	}
	return Change{Field: f, Previous: prev, Current: cur}, true
}

// Reset forgets both baselines.
func (t *Tracker) Reset() {
	t.battery = telemetry.None[int]()
	t.assist = telemetry.None[int]()
}

// Baseline returns the last seen battery and assist values.
func (t *Tracker) Baseline() (battery, assist telemetry.Optional[int]) {
	return t.battery, t.assist
}
