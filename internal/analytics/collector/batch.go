// Package collector provides a batching analytics publisher for bulk
// producers such as offline evaluation runs, where one Kafka write per
// query would dominate the run time.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/POI-Search-Evaluation-Engine/pkg/kafka"
)

// BatchPublisher is implemented by *kafka.Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// BatchCollector buffers events and publishes them when the buffer reaches
// batchSize, on every flushInterval tick, and once more on shutdown.
type BatchCollector struct {
	publisher     BatchPublisher
	mu            sync.Mutex
	flushMu       sync.Mutex
	buffer        []kafka.Event
	batchSize     int
	maxBuffered   int
	flushInterval time.Duration
	published     int
	dropped       int
	logger        *slog.Logger
	done          chan struct{}
}

func NewBatchCollector(publisher BatchPublisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &BatchCollector{
		publisher:     publisher,
		buffer:        make([]kafka.Event, 0, batchSize),
		batchSize:     batchSize,
		maxBuffered:   batchSize * 3,
		flushInterval: flushInterval,
		logger:        slog.Default().With("component", "batch-collector"),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush loop, which exits when ctx is
// cancelled.
func (bc *BatchCollector) Start(ctx context.Context) {
	go func() {
		defer close(bc.done)
		ticker := time.NewTicker(bc.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				bc.Flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				bc.Flush(flushCtx)
				cancel()
				return
			}
		}
	}()
	bc.logger.Info("batch collector started",
		"batch_size", bc.batchSize,
		"flush_interval", bc.flushInterval,
	)
}

// Track buffers one event and flushes synchronously once a full batch is
// waiting.
func (bc *BatchCollector) Track(ctx context.Context, event kafka.Event) {
	bc.mu.Lock()
	bc.buffer = append(bc.buffer, event)
	full := len(bc.buffer) >= bc.batchSize
	bc.mu.Unlock()

	if full {
		bc.Flush(ctx)
	}
}

// Close waits for the flush loop started by Start to finish.
func (bc *BatchCollector) Close() {
	<-bc.done
}

func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.buffer)
}

// Counts reports how many events were published and dropped so far.
func (bc *BatchCollector) Counts() (published, dropped int) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.published, bc.dropped
}

// Flush publishes everything buffered. Failed batches are re-queued ahead of
// newer events; the buffer is capped at three batches and the newest
// overflow is dropped.
func (bc *BatchCollector) Flush(ctx context.Context) {
	bc.flushMu.Lock()
	defer bc.flushMu.Unlock()

	bc.mu.Lock()
	if len(bc.buffer) == 0 {
		bc.mu.Unlock()
		return
	}
	batch := bc.buffer
	bc.buffer = make([]kafka.Event, 0, bc.batchSize)
	bc.mu.Unlock()

	if err := bc.publisher.PublishBatch(ctx, batch); err != nil {
		bc.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		bc.mu.Lock()
		bc.buffer = append(batch, bc.buffer...)
		if len(bc.buffer) > bc.maxBuffered {
			overflow := len(bc.buffer) - bc.maxBuffered
			bc.buffer = bc.buffer[:bc.maxBuffered]
			bc.dropped += overflow
			bc.logger.Warn("buffer overflow, events dropped", "dropped", overflow)
		}
		bc.mu.Unlock()
		return
	}

	bc.mu.Lock()
	bc.published += len(batch)
	bc.mu.Unlock()
	bc.logger.Debug("batch flushed", "events", len(batch))
}
