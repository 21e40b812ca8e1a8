// Package hooks provides production-ready Hook, Logger and metrics
// implementations.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// ── Structured logger adapter ─────────────────────────────────────────────────

// SlogLogger wraps the standard library slog.Logger to satisfy core.Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a logger backed by slog.
func NewSlogLogger(l *slog.Logger) *SlogLogger { return &SlogLogger{log: l} }

func (s *SlogLogger) Debug(msg string, fields ...interface{}) {
	s.log.Debug(msg, fields...)
}
func (s *SlogLogger) Info(msg string, fields ...interface{}) {
	s.log.Info(msg, fields...)
}
func (s *SlogLogger) Warn(msg string, fields ...interface{}) {
	s.log.Warn(msg, fields...)
}
func (s *SlogLogger) Error(msg string, fields ...interface{}) {
	s.log.Error(msg, fields...)
}

// ── Logging hook ──────────────────────────────────────────────────────────────

// LoggingHook logs before/after each pipeline stage.
type LoggingHook struct {
	logger core.Logger
}

// NewLoggingHook creates a LoggingHook.
func NewLoggingHook(l core.Logger) *LoggingHook { return &LoggingHook{logger: l} }

func (h *LoggingHook) BeforeStage(_ context.Context, stage core.Stage, req core.ImageRequest) {
	h.logger.Debug("pipeline.stage.start",
		"stage", string(stage),
		"uri", req.URIString(),
		"cache_key", req.CacheKey(),
	)
}

func (h *LoggingHook) AfterStage(_ context.Context, stage core.Stage, req core.ImageRequest, img *core.ImageData, d time.Duration, err error) {
	if err != nil {
		h.logger.Error("pipeline.stage.error",
			"stage", string(stage),
			"uri", req.URIString(),
			"duration_ms", d.Milliseconds(),
			"category", string(apperrors.CategoryOf(err)),
			"error", err.Error(),
		)
		return
	}
	out := "stream"
	if img != nil {
		out = fmt.Sprintf("%dx%d %s %dB", img.Meta.Width, img.Meta.Height, img.Format, img.Meta.SizeBytes)
	}
	h.logger.Debug("pipeline.stage.done",
		"stage", string(stage),
		"uri", req.URIString(),
		"duration_ms", d.Milliseconds(),
		"output", out,
	)
}

// ── In-memory metrics collector ───────────────────────────────────────────────

// InMemoryMetrics accumulates metrics; safe for concurrent use.
type InMemoryMetrics struct {
	mu sync.RWMutex

	stageDurationsMs map[core.Stage]int64 // cumulative ms per stage
	stageCalls       map[core.Stage]int64
	stageErrors      map[core.Stage]int64
	errorCategories  map[string]int64

	fetchedBytes int64
	cacheHits    int64
	cacheMisses  int64
}

// NewInMemoryMetrics creates an empty metrics store.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		stageDurationsMs: make(map[core.Stage]int64),
		stageCalls:       make(map[core.Stage]int64),
		stageErrors:      make(map[core.Stage]int64),
		errorCategories:  make(map[string]int64),
	}
}

func (m *InMemoryMetrics) RecordStageTime(stage core.Stage, d time.Duration) {
	m.mu.Lock()
	m.stageDurationsMs[stage] += d.Milliseconds()
	m.stageCalls[stage]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordStageError(stage core.Stage, category string) {
	m.mu.Lock()
	m.stageErrors[stage]++
	m.errorCategories[category]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordFetchedBytes(bytes int64) {
	atomic.AddInt64(&m.fetchedBytes, bytes)
}

func (m *InMemoryMetrics) RecordCacheHit(hit bool) {
	if hit {
		atomic.AddInt64(&m.cacheHits, 1)
	} else {
		atomic.AddInt64(&m.cacheMisses, 1)
	}
}

// Snapshot returns a copy of current metrics.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		StageDurationsMs: make(map[string]int64, len(m.stageDurationsMs)),
		StageCalls:       make(map[string]int64, len(m.stageCalls)),
		StageErrors:      make(map[string]int64, len(m.stageErrors)),
		ErrorCategories:  make(map[string]int64, len(m.errorCategories)),
		FetchedBytes:     atomic.LoadInt64(&m.fetchedBytes),
		CacheHits:        atomic.LoadInt64(&m.cacheHits),
		CacheMisses:      atomic.LoadInt64(&m.cacheMisses),
	}
	for k, v := range m.stageDurationsMs {
		snap.StageDurationsMs[string(k)] = v
	}
	for k, v := range m.stageCalls {
		snap.StageCalls[string(k)] = v
	}
	for k, v := range m.stageErrors {
		snap.StageErrors[string(k)] = v
	}
	for k, v := range m.errorCategories {
		snap.ErrorCategories[k] = v
	}
	return snap
}

// MetricsSnapshot is an immutable point-in-time copy of metrics.
type MetricsSnapshot struct {
	StageDurationsMs map[string]int64 `json:"stage_durations_ms"`
	StageCalls       map[string]int64 `json:"stage_calls"`
	StageErrors      map[string]int64 `json:"stage_errors"`
	ErrorCategories  map[string]int64 `json:"error_categories"`
	FetchedBytes     int64            `json:"fetched_bytes"`
	CacheHits        int64            `json:"cache_hits"`
	CacheMisses      int64            `json:"cache_misses"`
}

// ── Metrics hook ──────────────────────────────────────────────────────────────

// MetricsHook feeds pipeline events into a MetricsCollector.
type MetricsHook struct {
	collector core.MetricsCollector
}

// NewMetricsHook creates a MetricsHook.
func NewMetricsHook(c core.MetricsCollector) *MetricsHook { return &MetricsHook{collector: c} }

func (h *MetricsHook) BeforeStage(context.Context, core.Stage, core.ImageRequest) {}

func (h *MetricsHook) AfterStage(_ context.Context, stage core.Stage, _ core.ImageRequest, img *core.ImageData, d time.Duration, err error) {
	h.collector.RecordStageTime(stage, d)
	if err != nil {
		cat := string(apperrors.CategoryOf(err))
		if cat == "" {
			cat = "unknown"
		}
		h.collector.RecordStageError(stage, cat)
		return
	}
	if stage == core.StageDecode && img != nil {
		h.collector.RecordFetchedBytes(img.Meta.SizeBytes)
	}
}
