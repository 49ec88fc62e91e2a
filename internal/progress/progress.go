// Package progress renders a single-line terminal progress bar for the
// long pipeline stages.
package progress

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const barWidth = 20

// Bar is a textual progress bar. Not safe for concurrent use; stages
// report progress from their coordinating goroutine.
type Bar struct {
	w          io.Writer
	label      string
	total      int
	current    int
	start      time.Time
	lastRender time.Time
}

// New creates a bar writing to w. A non-positive total renders as a plain
// counter.
func New(w io.Writer, label string, total int) *Bar {
	b := &Bar{w: w, label: label, total: total, start: time.Now()}
	b.render(true)
	return b
}

// Increment advances the bar by one item.
func (b *Bar) Increment() {
	b.Set(b.current + 1)
}

// Set moves the bar to an absolute position.
func (b *Bar) Set(n int) {
	b.current = n
	b.render(false)
}

// Finish renders the final state and terminates the line.
func (b *Bar) Finish() {
	b.render(true)
	fmt.Fprintln(b.w)
}

// render redraws at most ten times a second unless forced.
func (b *Bar) render(force bool) {
	now := time.Now()
	if !force && now.Sub(b.lastRender) < 100*time.Millisecond {
		return
	}
	b.lastRender = now

	elapsed := now.Sub(b.start).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(b.current) / elapsed
	}

	if b.total <= 0 {
		fmt.Fprintf(b.w, "\r%s %d (%.1f/s)", b.label, b.current, rate)
		return
	}

	percent := 100 * b.current / b.total
	if percent > 100 {
		percent = 100
	}
	filled := barWidth * percent / 100

	eta := "--:--"
	if rate > 0 && b.current < b.total {
		remaining := time.Duration(float64(b.total-b.current)/rate) * time.Second
		eta = fmt.Sprintf("%d:%02d", int(remaining.Minutes()), int(remaining.Seconds())%60)
	}

	fmt.Fprintf(b.w, "\r%s [%s%s] %3d%% (%d/%d) %.1f/s ETA %s",
		b.label,
		strings.Repeat("█", filled),
		strings.Repeat("░", barWidth-filled),
		percent, b.current, b.total, rate, eta)
}
