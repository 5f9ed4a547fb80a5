package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/bikemon/internal/session"
	"github.com/srg/bikemon/internal/telemetry"
	"golang.org/x/term"
)

// lockedWriter serializes writes from the command and the alert dispatcher.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// colorsEnabled reports whether stdout is a terminal and NO_COLOR is unset.
func colorsEnabled(cmd *cobra.Command) bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	f, ok := stdoutIsFile(cmd)
	return ok && term.IsTerminal(int(f.Fd()))
}

// printer renders session updates either as text lines or as JSON lines.
type printer struct {
	out    io.Writer
	json   bool
	labels telemetry.AssistLabels

	state   *color.Color
	fail    *color.Color
	reading *color.Color
	dim     *color.Color
}

func newPrinter(out io.Writer, asJSON, colors bool, labels telemetry.AssistLabels) *printer {
	p := &printer{
		out:     out,
		json:    asJSON,
		labels:  labels,
		state:   color.New(color.FgCyan),
		fail:    color.New(color.FgRed, color.Bold),
		reading: color.New(color.FgGreen),
		dim:     color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.state, p.fail, p.reading, p.dim} {
		if colors {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

type jsonLine struct {
	Type    string             `json:"type"`
	Status  *session.Status    `json:"status,omitempty"`
	Reading *telemetry.Reading `json:"reading,omitempty"`
}

func (p *printer) emitJSON(line jsonLine) {
	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	fmt.Fprintln(p.out, string(data))
}

func (p *printer) Status(st session.Status) {
	if p.json {
		p.emitJSON(jsonLine{Type: "state", Status: &st})
		return
	}
	c := p.state
	if st.State == session.Error {
		c = p.fail
	}
	fmt.Fprintln(p.out, c.Sprintf("state: %s", st))
}

func (p *printer) Reading(r telemetry.Reading) {
	if p.json {
		p.emitJSON(jsonLine{Type: "reading", Reading: &r})
		return
	}
	stamp := r.CapturedAt.Format("15:04:05")
	if !r.HasData() {
		fmt.Fprintf(p.out, "%s %s\n", stamp, p.dim.Sprintf("[%db] %s", r.Length, r.RawHex))
		return
	}
	fmt.Fprintf(p.out, "%s %s %s\n", stamp, p.reading.Sprint(p.labels.Summary(r)), p.dim.Sprintf("[%db]", r.Length))
}
