package progress

import (
	"context"
	"io"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// syncWriter serializes every write mpb makes alongside any Suspend call,
// so a log line and a bar redraw never interleave their bytes. mpb has no
// built-in suspend primitive (unlike indicatif's ProgressBar::suspend), so
// a shared lock around the underlying writer is the mechanism here.
type syncWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Write(p)
}

func (w *syncWriter) Suspend(f func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f()
}

// MultiRenderer draws one overall bar plus one spinner per in-flight item,
// graduating (removing) each item's spinner on its Finish event.
type MultiRenderer struct {
	out      *syncWriter
	progress *mpb.Progress
	overall  *mpb.Bar

	mu   sync.Mutex
	bars map[int]*mpb.Bar
}

func modernSpinner(mpb.BarFiller) mpb.BarFiller {
	return mpb.SpinnerStyle("⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷", " ").PositionLeft().Build()
}

func emptyDecorator() decor.Decorator {
	return decor.Any(func(decor.Statistics) string { return "" })
}

// NewMultiRenderer creates a renderer with total items, writing to out.
func NewMultiRenderer(out io.Writer, total int) *MultiRenderer {
	w := &syncWriter{out: out}
	p := mpb.New(mpb.WithOutput(w), mpb.WithWidth(60))
	m := &MultiRenderer{out: w, progress: p, bars: make(map[int]*mpb.Bar)}
	m.overall = p.AddBar(int64(total),
		mpb.PrependDecorators(decor.Name("overall ")),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)
	return m
}

func (m *MultiRenderer) itemBar(index int, name string) *mpb.Bar {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bar, ok := m.bars[index]; ok {
		return bar
	}
	bar := m.progress.AddSpinner(1, mpb.BarFillerMiddleware(modernSpinner),
		mpb.BarWidth(2),
		mpb.PrependDecorators(
			decor.OnComplete(emptyDecorator(), "✓"),
		),
		mpb.AppendDecorators(decor.Name(" "+name)),
		mpb.BarFillerClearOnComplete(),
		mpb.BarRemoveOnComplete(),
	)
	m.bars[index] = bar
	return bar
}

// Run consumes events from sub until it closes or ctx is done. Overall
// events drive the top-level bar; item events drive one spinner per index,
// which graduates away on its Finish.
func (m *MultiRenderer) Run(ctx context.Context, sub *Subscription[DetailEvent[uint64, uint64]]) {
	for {
		event, ok := sub.Recv(ctx)
		if !ok {
			break
		}
		index, isItem := event.Tag()
		if !isItem {
			if pos, ok := event.Position(); ok {
				m.overall.SetCurrent(int64(pos))
			}
			if event.Graduate() {
				m.overall.SetCurrent(m.overall.Current())
			}
			continue
		}
		name, _ := event.Message()
		bar := m.itemBar(index, name)
		if event.Graduate() {
			bar.SetCurrent(1)
			m.overall.Increment()
		}
	}
	m.progress.Wait()
}

// Suspend pauses bar output for the duration of f.
func (m *MultiRenderer) Suspend(f func()) {
	m.out.Suspend(f)
}
