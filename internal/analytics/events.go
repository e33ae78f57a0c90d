package analytics

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/kafka"
)

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventReload     EventType = "dataset_reload"
)

// SearchEvent records one served query together with its relevance label
// sequence, so downstream consumers can recompute MAP over many queries.
type SearchEvent struct {
	Type             EventType `json:"type"`
	Query            string    `json:"query"`
	Mode             string    `json:"mode"`
	Category         string    `json:"category,omitempty"`
	HasLocation      bool      `json:"has_location"`
	TotalResults     int       `json:"total_results"`
	Relevant         int       `json:"relevant"`
	Labels           []bool    `json:"labels"`
	K                int       `json:"k"`
	PrecisionAtK     float64   `json:"precision_k"`
	RecallAtK        float64   `json:"recall_k"`
	AveragePrecision float64   `json:"average_precision"`
	LatencyMs        int64     `json:"latency_ms"`
	CacheHit         bool      `json:"cache_hit"`
	Timestamp        time.Time `json:"timestamp"`
	RequestID        string    `json:"request_id"`
}

// NewSearchEvent builds the event for an executed search.
func NewSearchEvent(res *executor.SearchResult, latencyMs int64, cacheHit bool, requestID string) SearchEvent {
	ev := SearchEvent{
		Type:             EventSearch,
		Query:            res.Query,
		Mode:             res.Mode,
		Category:         res.Category,
		HasLocation:      res.Location != nil,
		TotalResults:     res.TotalResults,
		Labels:           res.Labels,
		K:                res.Evaluation.K,
		PrecisionAtK:     res.Evaluation.PrecisionAtK,
		RecallAtK:        res.Evaluation.RecallAtK,
		AveragePrecision: res.Evaluation.AveragePrecision,
		LatencyMs:        latencyMs,
		CacheHit:         cacheHit,
		Timestamp:        time.Now().UTC(),
		RequestID:        requestID,
	}
	if res.TotalResults == 0 {
		ev.Type = EventZeroResult
	}
	for _, l := range res.Labels {
		if l {
			ev.Relevant++
		}
	}
	return ev
}

// Message wraps ev for publishing. Search events are keyed by mode so
// per-mode ordering holds.
func (ev SearchEvent) Message() kafka.Event {
	return kafka.Event{Key: string(EventSearch) + ":" + ev.Mode, Type: string(ev.Type), Value: ev}
}

// ReloadEvent records a dataset refit.
type ReloadEvent struct {
	Type       EventType `json:"type"`
	Documents  int       `json:"documents"`
	Vocabulary int       `json:"vocabulary"`
	Succeeded  bool      `json:"succeeded"`
	Error      string    `json:"error,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

func (ev ReloadEvent) Message() kafka.Event {
	return kafka.Event{Key: string(EventReload), Type: string(EventReload), Value: ev}
}

type envelope struct {
	Type EventType `json:"type"`
}
