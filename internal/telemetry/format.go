package telemetry

import (
	"fmt"
	"strings"
)

// Missing is rendered in place of an absent field.
const Missing = "--"

// DefaultAssistLabels names the drive unit's assist modes by code.
var DefaultAssistLabels = AssistLabels{
	0: "OFF",
	1: "ECO",
	2: "TOUR",
	3: "SPORT",
	4: "TURBO",
}

// AssistLabels maps assist-mode codes to display labels.
type AssistLabels map[int]string

// Label returns the label for code, or "MODE <code>" when the code is unknown.
func (l AssistLabels) Label(code int) string {
	if name, ok := l[code]; ok && name != "" {
		return name
	}
	if name, ok := DefaultAssistLabels[code]; ok {
		return name
	}
	return fmt.Sprintf("MODE %d", code)
}

// Merge returns a copy of the default table with overrides applied on top.
func (l AssistLabels) Merge(overrides map[int]string) AssistLabels {
	out := make(AssistLabels, len(l)+len(overrides))
	for k, v := range l {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// FormatAssist renders an assist mode by label.
func (l AssistLabels) FormatAssist(o Optional[int]) string {
	if v, ok := o.Get(); ok {
		return l.Label(v)
	}
	return Missing
}

// FormatBattery renders a battery level as "NN%".
func FormatBattery(o Optional[int]) string {
	if v, ok := o.Get(); ok {
		return fmt.Sprintf("%d%%", v)
	}
	return Missing
}

// FormatSpeed renders a speed as "NN.N km/h".
func FormatSpeed(o Optional[float64]) string {
	if v, ok := o.Get(); ok {
		return fmt.Sprintf("%.1f km/h", v)
	}
	return Missing
}

// Summary renders the structured fields of r on one line.
func (l AssistLabels) Summary(r Reading) string {
	parts := []string{
		"assist=" + l.FormatAssist(r.AssistMode),
		"battery=" + FormatBattery(r.Battery),
		"speed=" + FormatSpeed(r.Speed),
	}
	return strings.Join(parts, " ")
}
