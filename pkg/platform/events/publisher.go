package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"issuance/pkg/requestcontext"
)

// Publisher is the non-blocking Emitter. A single worker drains the ring
// buffer into the sink in batches.
type Publisher struct {
	sink      Sink
	buf       *RingBuffer
	logger    *slog.Logger
	metrics   *Metrics
	batchSize int
	interval  time.Duration

	notify    chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithBufferSize bounds the number of undelivered events kept in memory.
func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		p.buf = NewRingBuffer(n)
	}
}

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushInterval sets how often the worker drains the buffer without being notified.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

// NewPublisher creates a publisher and starts its worker. Call Close to drain.
func NewPublisher(sink Sink, opts ...Option) *Publisher {
	p := &Publisher{
		sink:      sink,
		buf:       NewRingBuffer(10000),
		batchSize: 100,
		interval:  time.Second,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Emit enqueues an event stamped with the request id, principal and request
// time found in ctx.
func (p *Publisher) Emit(ctx context.Context, kind Kind, key string, payload map[string]any) {
	event := Event{
		ID:        uuid.New(),
		Kind:      kind,
		Key:       key,
		Payload:   payload,
		Timestamp: requestcontext.Now(ctx),
		RequestID: requestcontext.RequestID(ctx),
		Principal: requestcontext.Principal(ctx).String(),
	}
	if p.buf.Enqueue(event) {
		if p.metrics != nil {
			p.metrics.Dropped.Inc()
		}
		if p.logger != nil {
			p.logger.Warn("event buffer full, dropped oldest event")
		}
	}
	if p.metrics != nil {
		p.metrics.Emitted.WithLabelValues(string(kind.Category())).Inc()
		p.metrics.Buffered.Set(float64(p.buf.Len()))
	}
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Dropped returns the number of events lost to buffer overflow.
func (p *Publisher) Dropped() int64 {
	return p.buf.Dropped()
}

// Close stops the worker after draining buffered events.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
	return nil
}

func (p *Publisher) run() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			p.drain()
			return
		case <-p.notify:
			p.drain()
		case <-ticker.C:
			p.drain()
		}
	}
}

func (p *Publisher) drain() {
	for {
		batch := p.buf.DequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := p.sink.Write(ctx, batch)
		cancel()
		if err != nil {
			if p.metrics != nil {
				p.metrics.SinkFailures.Inc()
			}
			if p.logger != nil {
				p.logger.Error("failed to write events", "count", len(batch), "error", err)
			}
		}
		if p.metrics != nil {
			p.metrics.Buffered.Set(float64(p.buf.Len()))
		}
	}
}
