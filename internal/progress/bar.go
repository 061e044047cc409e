package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// IsTerminalFunc is the terminal check used by ShouldShowProgress. It is a
// var so tests can override it.
var IsTerminalFunc = term.IsTerminal

// ShouldShowProgress reports whether stdout is a terminal — bar rendering
// is skipped entirely for piped or redirected output.
func ShouldShowProgress() bool {
	return IsTerminalFunc(int(os.Stdout.Fd()))
}

// BarRenderer draws a single in-place progress line driven by a stream of
// Feed events. It implements pblog.Suspendable so a log line can interrupt
// the bar without the two interleaving on the terminal.
type BarRenderer struct {
	out io.Writer

	mu        sync.Mutex
	message   string
	current   uint64
	max       uint64
	hasMax    bool
	startTime time.Time
	lastDraw  time.Time
	lineLen   int
}

// NewBarRenderer creates a renderer writing to out.
func NewBarRenderer(out io.Writer) *BarRenderer {
	return &BarRenderer{out: out, startTime: time.Now()}
}

// Run consumes events from sub until it closes or ctx is done, redrawing
// the line (at most about ten times a second) and clearing it on a Finish.
func (r *BarRenderer) Run(ctx context.Context, sub *Subscription[Event[uint64]]) {
	for {
		event, ok := sub.Recv(ctx)
		if !ok {
			return
		}
		r.onEvent(event)
		if event.Kind() == KindFinish {
			r.clear()
			return
		}
	}
}

func (r *BarRenderer) onEvent(e Feed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := e.Message(); ok {
		r.message = msg
	}
	if pos, ok := e.Position(); ok {
		r.current = pos
	}
	if length, ok := e.Length(); ok {
		r.max = length
		r.hasMax = true
	}
	r.draw()
}

// draw rate-limits to roughly 10Hz and must be called with mu held.
func (r *BarRenderer) draw() {
	now := time.Now()
	if now.Sub(r.lastDraw) < 100*time.Millisecond {
		return
	}
	r.lastDraw = now

	elapsed := now.Sub(r.startTime).Seconds()
	speed := float64(0)
	if elapsed > 0.1 {
		speed = float64(r.current) / elapsed
	}

	var line string
	if r.hasMax && r.max > 0 {
		percent := float64(r.current) / float64(r.max) * 100
		if percent > 100 {
			percent = 100
		}
		etaStr := "--:--"
		if speed > 0 {
			remaining := float64(r.max-r.current) / speed
			if remaining < 0 {
				remaining = 0
			}
			etaStr = formatDuration(remaining)
		}
		const barWidth = 30
		filled := int(percent / 100 * barWidth)
		if filled > barWidth {
			filled = barWidth
		}
		bar := strings.Repeat("=", filled)
		if filled < barWidth {
			bar += ">" + strings.Repeat(" ", barWidth-filled-1)
		}
		line = fmt.Sprintf("\r%s [%s] %3.0f%% (%s/%s) %s/s ETA: %s",
			r.message, bar, percent, formatBytes(int64(r.current)), formatBytes(int64(r.max)),
			formatBytes(int64(speed)), etaStr)
	} else {
		line = fmt.Sprintf("\r%s %s (%s/s)", r.message, formatBytes(int64(r.current)), formatBytes(int64(speed)))
	}
	if len(line) < r.lineLen {
		line += strings.Repeat(" ", r.lineLen-len(line))
	}
	r.lineLen = len(line)
	fmt.Fprint(r.out, line)
}

// clear erases the current line without leaving a blank row behind.
func (r *BarRenderer) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "\r%s\r", strings.Repeat(" ", r.lineLen))
	r.lineLen = 0
}

// Suspend runs f. When the bar is on screen, it clears the line first and
// redraws it afterwards so a log write never lands mid-bar; an idle or
// finished bar draws nothing.
func (r *BarRenderer) Suspend(f func()) {
	r.mu.Lock()
	shown := r.lineLen > 0
	if shown {
		fmt.Fprintf(r.out, "\r%s\r", strings.Repeat(" ", r.lineLen))
	}
	r.mu.Unlock()

	f()

	if shown {
		r.mu.Lock()
		r.lastDraw = time.Time{}
		r.draw()
		r.mu.Unlock()
	}
}

func formatBytes(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}

func formatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	s := int(seconds)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, (s%3600)/60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
