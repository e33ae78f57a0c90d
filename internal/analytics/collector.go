package analytics

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/metrics"
)

// Publisher is implemented by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Collector buffers analytics events and publishes them from a single
// goroutine so request handlers never wait on Kafka.
type Collector struct {
	publisher Publisher
	eventCh   chan interface{}
	metrics   *metrics.Metrics
	logger    *slog.Logger
	done      chan struct{}
}

// NewCollector creates a collector. m may be nil.
func NewCollector(publisher Publisher, bufferSize int, m *metrics.Metrics) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan interface{}, bufferSize),
		metrics:   m,
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
	}
}

func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues event without blocking. Events are dropped when the buffer
// is full.
func (c *Collector) Track(event interface{}) {
	select {
	case c.eventCh <- event:
	default:
		c.count("dropped")
		c.logger.Warn("analytics event dropped (buffer full)")
	}
}

// Close stops accepting events and waits for the publish loop to exit.
func (c *Collector) Close() {
	close(c.eventCh)
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event interface{}) {
	if err := c.publisher.Publish(ctx, message(event)); err != nil {
		c.count("dropped")
		c.logger.Error("failed to publish analytics event", "error", err)
		return
	}
	c.count("published")
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			c.publish(context.Background(), event)
		default:
			return
		}
	}
}

func (c *Collector) count(stage string) {
	if c.metrics != nil {
		c.metrics.AnalyticsEventsTotal.WithLabelValues(stage).Inc()
	}
}

func message(event interface{}) kafka.Event {
	switch ev := event.(type) {
	case SearchEvent:
		return ev.Message()
	case ReloadEvent:
		return ev.Message()
	default:
		return kafka.Event{Key: "analytics", Value: event}
	}
}
