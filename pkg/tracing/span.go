// Package tracing provides lightweight span trees propagated through
// contexts. A Recorder decides which finished trees are logged via slog.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span is a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	mu        sync.Mutex
}

// StartSpan creates a root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Children:  make([]*Span, 0),
		Attrs:     make(map[string]any),
	}
	return context.WithValue(ctx, spanKey, span), span
}

// StartChildSpan creates a span linked to the span in ctx. Without a parent
// the span is detached and never logged.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	child := &Span{
		Name:      name,
		StartTime: time.Now(),
		Children:  make([]*Span, 0),
		Attrs:     make(map[string]any),
	}

	if parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}

	return context.WithValue(ctx, spanKey, child), child
}

func (s *Span) End() {
	s.mu.Lock()
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	s.mu.Unlock()
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// Attr returns the attribute stored under key.
func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Attrs[key]
	return v, ok
}

// Child returns the first direct child named name, or nil.
func (s *Span) Child(name string) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// Log writes the span tree to slog.
func (s *Span) Log() {
	s.logRecursive(0)
}

func (s *Span) logRecursive(depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", s.Duration.Milliseconds(),
		"depth", depth,
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()
	slog.Info("span", attrs...)

	for _, child := range children {
		child.logRecursive(depth + 1)
	}
}

// Recorder ends root spans and logs the trees that are sampled or slow.
type Recorder struct {
	enabled    bool
	sampleRate float64
	slow       time.Duration
	sample     func() float64
}

// NewRecorder returns a Recorder. A zero slow threshold disables slow-span
// logging; sampleRate is clamped to [0,1].
func NewRecorder(enabled bool, sampleRate float64, slow time.Duration) *Recorder {
	return &Recorder{
		enabled:    enabled,
		sampleRate: min(max(sampleRate, 0), 1),
		slow:       slow,
		sample:     rand.Float64,
	}
}

// Finish ends span and reports whether its tree was logged.
func (r *Recorder) Finish(span *Span) bool {
	span.End()
	if r == nil || !r.enabled {
		return false
	}
	slow := r.slow > 0 && span.Duration >= r.slow
	if !slow && r.sample() >= r.sampleRate {
		return false
	}
	span.SetAttr("slow", slow)
	span.Log()
	return true
}
