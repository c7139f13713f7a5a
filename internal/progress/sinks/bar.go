package sinks

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/JakeFAU/item-crawler/internal/progress"
)

// BarSink renders a terminal progress bar sized to the run's max id.
type BarSink struct {
	mu  sync.Mutex
	out io.Writer
	bar *progressbar.ProgressBar
}

// NewBarSink draws to out, or stderr when out is nil.
func NewBarSink(out io.Writer) *BarSink {
	if out == nil {
		out = os.Stderr
	}
	return &BarSink{out: out}
}

// Consume advances the bar on run start and progress events.
func (s *BarSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.bar = progressbar.NewOptions64(
				evt.Observation.Total+1,
				progressbar.OptionSetWriter(s.out),
				progressbar.OptionSetDescription("Crawling"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("items"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionSetRenderBlankState(true),
			)
			_ = s.bar.Set64(evt.Observation.Processed)
		case progress.StageProgress, progress.StageRunDone:
			if s.bar != nil {
				_ = s.bar.Set64(evt.Observation.Processed)
			}
		}
		if evt.Stage == progress.StageRunDone && s.bar != nil {
			_ = s.bar.Finish()
			s.bar = nil
		}
	}
	return nil
}

// current reports the bar position, or -1 when no run is being drawn.
func (s *BarSink) current() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar == nil {
		return -1
	}
	return int64(s.bar.State().CurrentNum)
}

// Close finishes any bar still on screen.
func (s *BarSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		_ = s.bar.Finish()
		s.bar = nil
	}
	return nil
}
