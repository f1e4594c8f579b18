// Package pipeline fans feed records out to upsert workers so that records
// of one identity are always applied by the same worker, in feed order.
package pipeline

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-stock-sync/engine"
	"github.com/aluiziolira/go-stock-sync/models"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = eris.New("pipeline: closed")
)

// Upserter applies one record. Key must agree with the key Upsert uses.
type Upserter interface {
	Key(rec *models.FeedRecord) (string, error)
	Upsert(ctx context.Context, rec *models.FeedRecord, run *engine.Run) (models.Outcome, error)
}

// Pipeline routes records to shard workers by the hash of their canonical key.
type Pipeline struct {
	upserter Upserter
	run      *engine.Run
	logger   *zap.Logger

	shards []chan *models.FeedRecord
	buffer int
	ctx    context.Context

	wg sync.WaitGroup

	metrics metrics

	mu      sync.Mutex // guards closed/started
	closed  bool
	started bool

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline applying records to run.
func NewPipeline(u Upserter, run *engine.Run, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.L()
	}
	return &Pipeline{
		upserter: u,
		run:      run,
		logger:   logger,
		buffer:   64,
		metrics:  newMetrics(),
		shutdown: make(chan struct{}),
	}
}

// Start launches one worker per shard. Calling it twice is a no-op.
func (p *Pipeline) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.started {
		return
	}
	p.started = true
	p.ctx = ctx

	p.shards = make([]chan *models.FeedRecord, workers)
	for i := range p.shards {
		p.shards[i] = make(chan *models.FeedRecord, p.buffer)
		p.wg.Add(1)
		go p.worker(i, p.shards[i])
	}
}

// Process routes records to their shards, blocking while a shard is full.
func (p *Pipeline) Process(records ...*models.FeedRecord) error {
	p.mu.Lock()
	closed, started := p.closed, p.started
	p.mu.Unlock()
	if closed {
		return ErrPipelineClosed
	}
	if !started {
		return eris.New("pipeline: not started")
	}

	for _, rec := range records {
		if rec == nil {
			continue
		}
		p.metrics.incrementReceived()
		if err := p.enqueue(p.shardFor(rec), rec); err != nil {
			return err
		}
	}
	return nil
}

// Consume feeds every record from a feed stream into the pipeline and returns
// the stream error, if any. It stops early when ctx is cancelled.
func (p *Pipeline) Consume(ctx context.Context, records <-chan *models.FeedRecord, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-records:
			if !ok {
				if err, ok := <-errs; ok && err != nil {
					return err
				}
				return nil
			}
			if err := p.Process(rec); err != nil {
				return err
			}
		}
	}
}

// Close stops accepting records and waits until every worker has drained its
// shard. After Close returns no upsert is in flight.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	p.closeOnce.Do(func() {
		for _, ch := range p.shards {
			close(ch)
		}
	})

	p.wg.Wait()
	return nil
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs until Close.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m := p.GetMetrics()
				p.logger.Info("pipeline progress",
					zap.Int64("received", m["received"].(int64)),
					zap.Int64("applied", m["applied"].(int64)),
					zap.Any("errors", m["errors"]),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker(id int, in <-chan *models.FeedRecord) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker", id))

	for rec := range in {
		out, err := p.upserter.Upsert(p.ctx, rec, p.run)
		if err != nil {
			p.metrics.addError(string(out.Status))
			log.Debug("upsert returned error", zap.String("key", out.Key), zap.Error(err))
			continue
		}
		p.metrics.incrementApplied()
	}
}

// shardFor maps a record to its shard. Records without identity go to shard
// 0, where the upserter rejects them.
func (p *Pipeline) shardFor(rec *models.FeedRecord) int {
	key, err := p.upserter.Key(rec)
	if err != nil {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.shards)))
}

func (p *Pipeline) enqueue(shard int, rec *models.FeedRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.shards[shard] <- rec:
		return nil
	}
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu       sync.Mutex
	received int64
	applied  int64
	errors   map[string]int
}

func newMetrics() metrics {
	return metrics{
		errors: make(map[string]int),
	}
}

func (m *metrics) incrementReceived() {
	m.mu.Lock()
	m.received++
	m.mu.Unlock()
}

func (m *metrics) incrementApplied() {
	m.mu.Lock()
	m.applied++
	m.mu.Unlock()
}

func (m *metrics) addError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyErrors := make(map[string]int, len(m.errors))
	for k, v := range m.errors {
		copyErrors[k] = v
	}

	return map[string]interface{}{
		"received": m.received,
		"applied":  m.applied,
		"errors":   copyErrors,
	}
}
