package cheyenne

import (
	"context"
	"iter"
)

// AudioBridge decouples the network read path from a slower downstream
// consumer. It is a bounded FIFO of raw audio chunks: the dispatcher is the
// single producer, the pipeline consumer the single consumer.
//
// Enqueue never blocks. When the queue is full the entire backlog is
// discarded, incoming chunk included: the consumer has fallen behind, and
// stale audio is useless to a live recognizer.
type AudioBridge struct {
	ch       chan []byte
	capacity int
	log      *Logger
	stats    *Stats
}

// NewAudioBridge creates a bridge with the given chunk capacity.
func NewAudioBridge(capacity int, logger *Logger, stats *Stats) *AudioBridge {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = DefaultLogger()
	}
	return &AudioBridge{
		ch:       make(chan []byte, capacity),
		capacity: capacity,
		log:      logger.WithComponent("audio_bridge"),
		stats:    stats,
	}
}

// Capacity returns the configured chunk capacity.
func (b *AudioBridge) Capacity() int {
	return b.capacity
}

// Len returns the number of queued chunks.
func (b *AudioBridge) Len() int {
	return len(b.ch)
}

// Enqueue adds a chunk without blocking. On overflow the whole backlog and
// the new chunk are dropped.
func (b *AudioBridge) Enqueue(chunk []byte) {
	select {
	case b.ch <- chunk:
		return
	default:
	}

	dropped := 1 // the incoming chunk
	for {
		select {
		case <-b.ch:
			dropped++
		default:
			b.log.Errorf("chunk queue full, dumped %d chunks", dropped)
			if b.stats != nil {
				b.stats.CountDroppedChunks(dropped)
			}
			return
		}
	}
}

// Dequeue blocks until a chunk is available or ctx is done. Chunks that
// survive the overflow policy come out in FIFO order.
func (b *AudioBridge) Dequeue(ctx context.Context) ([]byte, error) {
	select {
	case chunk := <-b.ch:
		return chunk, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Chunks returns the bridge as a pull-based chunk sequence. The sequence
// never completes on its own; it ends only when ctx is cancelled.
func (b *AudioBridge) Chunks(ctx context.Context) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for {
			chunk, err := b.Dequeue(ctx)
			if err != nil {
				return
			}
			if !yield(chunk) {
				return
			}
		}
	}
}
