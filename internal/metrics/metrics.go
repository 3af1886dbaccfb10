// Package metrics records storage counters and latencies through statsd.
//
// A nil *Recorder is valid and records nothing, so components can take an
// optional recorder without branching at every call site.
package metrics

import (
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog"

	"github.com/roach88/loomstore/internal/config"
)

// Metric keys.
const (
	FlashReinit       = "flash_reinit_count"
	FlashErase        = "flash_erase_count"
	FlashRead         = "flash_read_count"
	FlashWrite        = "flash_write_count"
	FlashWriteLatency = "flash_write_latency"

	LogAppendFrames  = "recordlog_append_frames"
	LogAppendBytes   = "recordlog_append_bytes"
	LogAppendLatency = "recordlog_append_latency"
	LogScanFrames    = "recordlog_scan_frames"
	LogScanLatency   = "recordlog_scan_latency"
	LogTornTail      = "recordlog_torn_tail_count"
)

// Tag keys.
const (
	TagEntity = "entity"
)

// Tag formats a statsd "key:value" tag.
func Tag(key, value string) string {
	return key + ":" + value
}

// Recorder wraps a statsd client with a fixed sample rate.
type Recorder struct {
	client     statsd.ClientInterface
	sampleRate float64
	log        zerolog.Logger
}

// New builds a recorder from config. When metrics are disabled the recorder
// is backed by a no-op client.
func New(cfg config.MetricsConfig, log zerolog.Logger) (*Recorder, error) {
	if !cfg.Enabled {
		return NewWithClient(&statsd.NoOpClient{}, cfg.SampleRate, log), nil
	}

	client, err := statsd.New(cfg.Address,
		statsd.WithNamespace(cfg.Namespace),
		statsd.WithTags(cfg.Tags),
	)
	if err != nil {
		return nil, fmt.Errorf("statsd client %s: %w", cfg.Address, err)
	}
	log.Info().Str("address", cfg.Address).Float64("sample_rate", cfg.SampleRate).Msg("metrics enabled")
	return NewWithClient(client, cfg.SampleRate, log), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client statsd.ClientInterface, sampleRate float64, log zerolog.Logger) *Recorder {
	return &Recorder{client: client, sampleRate: sampleRate, log: log}
}

// Count adds value to a counter.
func (r *Recorder) Count(name string, value int64, tags ...string) {
	if r == nil {
		return
	}
	if err := r.client.Count(name, value, tags, r.sampleRate); err != nil {
		r.log.Warn().Err(err).Str("metric", name).Msg("statsd count failed")
	}
}

// Incr adds one to a counter.
func (r *Recorder) Incr(name string, tags ...string) {
	r.Count(name, 1, tags...)
}

// Since records the time elapsed since start.
func (r *Recorder) Since(name string, start time.Time, tags ...string) {
	if r == nil {
		return
	}
	if err := r.client.Timing(name, time.Since(start), tags, r.sampleRate); err != nil {
		r.log.Warn().Err(err).Str("metric", name).Msg("statsd timing failed")
	}
}

// Close flushes and closes the underlying client.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	return r.client.Close()
}
