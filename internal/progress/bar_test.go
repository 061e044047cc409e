package progress

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{1073741824, "1.0 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.expected {
			t.Errorf("formatBytes(%d) = %s, want %s", tt.bytes, got, tt.expected)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds  float64
		expected string
	}{
		{0, "0:00"},
		{90, "1:30"},
		{3661, "1:01:01"},
		{-5, "0:00"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.seconds); got != tt.expected {
			t.Errorf("formatDuration(%v) = %s, want %s", tt.seconds, got, tt.expected)
		}
	}
}

func TestShouldShowProgress(t *testing.T) {
	orig := IsTerminalFunc
	defer func() { IsTerminalFunc = orig }()

	IsTerminalFunc = func(int) bool { return true }
	if !ShouldShowProgress() {
		t.Error("expected true when stdout is a terminal")
	}
	IsTerminalFunc = func(int) bool { return false }
	if ShouldShowProgress() {
		t.Error("expected false when stdout is not a terminal")
	}
}

func TestBarRendererRunDrawsUntilFinish(t *testing.T) {
	var out bytes.Buffer
	r := NewBarRenderer(&out)
	tr := NewTracker(InitEvent[uint64](100))
	sub := tr.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Run(ctx, sub)
		close(done)
	}()

	tr.Send(ProgressEvent[uint64](50, 100, true))
	tr.Send(FinishEvent[uint64]())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after a Finish event")
	}
}

func TestBarRendererSuspendRunsCallback(t *testing.T) {
	var out bytes.Buffer
	r := NewBarRenderer(&out)

	called := false
	r.Suspend(func() { called = true })
	if !called {
		t.Error("expected Suspend to invoke its callback")
	}
}
