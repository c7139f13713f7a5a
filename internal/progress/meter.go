package progress

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/JakeFAU/item-crawler/internal/crawler"
)

// Observation is one throughput sample derived at a reporting boundary.
type Observation struct {
	Processed int64         `json:"processed"`
	Total     int64         `json:"total"`
	Percent   float64       `json:"percent"`
	Rate      float64       `json:"items_per_second"`
	ETA       time.Duration `json:"eta"`
}

// Line renders the observation as a human-readable status line, e.g.
// "12,000/40,000,000 | 0.03% | 850.22 items/s | ETA: 13:04:10".
func (o Observation) Line() string {
	p := message.NewPrinter(language.English)
	return p.Sprintf("%d/%d | %.2f%% | %.2f items/s | ETA: %s",
		o.Processed, o.Total, o.Percent, o.Rate, FormatETA(o.ETA))
}

// FormatETA renders d as HH:MM:SS, flooring each component. Hours are not
// capped at 24. Negative durations render as "--:--:--".
func FormatETA(d time.Duration) string {
	if d < 0 {
		return "--:--:--"
	}
	secs := d.Seconds()
	hours := math.Floor(secs / 3600)
	minutes := math.Floor(math.Mod(secs, 3600) / 60)
	seconds := math.Floor(math.Mod(secs, 60))
	return fmt.Sprintf("%02d:%02d:%02d", int64(hours), int64(minutes), int64(seconds))
}

// MeterConfig wires a Meter.
type MeterConfig struct {
	RunID             [16]byte
	ReportingInterval int64
	Clock             crawler.Clock
	Emitter           Emitter
	// Logger receives the status line at every reporting boundary. It is
	// written here rather than by a hub sink so a full hub buffer cannot
	// drop it.
	Logger *zap.Logger
}

// Meter derives throughput and ETA from the scanner's processed counter. The
// rate is the reporting interval divided by the wall time since the previous
// report. Meter implements gap.Observer.
type Meter struct {
	mu   sync.Mutex
	cfg  MeterConfig
	last time.Time
}

// NewMeter builds a Meter; the first interval is timed from construction.
func NewMeter(cfg MeterConfig) *Meter {
	if cfg.ReportingInterval <= 0 {
		cfg.ReportingInterval = 1000
	}
	if cfg.Emitter == nil {
		cfg.Emitter = NopEmitter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Meter{cfg: cfg, last: cfg.Clock.Now()}
}

// Observe records a reporting boundary, logs the status line and emits a
// PROGRESS event.
func (m *Meter) Observe(processed, total int64) {
	now := m.cfg.Clock.Now()
	obs := m.Measure(processed, total, now)
	m.cfg.Logger.Info(obs.Line(),
		zap.Int64("processed", obs.Processed),
		zap.Int64("total", obs.Total),
		zap.Float64("percent", obs.Percent),
		zap.Float64("items_per_second", obs.Rate),
		zap.Duration("eta", obs.ETA),
	)
	m.cfg.Emitter.Emit(Event{
		RunID:       m.cfg.RunID,
		TS:          now,
		Stage:       StageProgress,
		Worker:      -1,
		Observation: obs,
	})
}

// Measure computes an observation at now and makes now the new baseline.
func (m *Meter) Measure(processed, total int64, now time.Time) Observation {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := now.Sub(m.last).Seconds()
	m.last = now

	obs := Observation{
		Processed: processed,
		Total:     total,
		Percent:   100,
		ETA:       -1,
	}
	if total > 0 {
		obs.Percent = float64(processed) / float64(total) * 100
	}
	if elapsed > 0 {
		obs.Rate = float64(m.cfg.ReportingInterval) / elapsed
		remaining := float64(max(total-processed, 0))
		eta := remaining / obs.Rate * float64(time.Second)
		if eta >= math.MaxInt64 {
			obs.ETA = time.Duration(math.MaxInt64)
		} else {
			obs.ETA = time.Duration(eta)
		}
	}
	return obs
}
