// Package persistence implements the batched, prioritized, at-least-once
// asynchronous pipeline that consumes EventBus messages and applies them to
// DurableStore (§4.9).
package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chesscore/realtime/internal/eventbus"
	"github.com/chesscore/realtime/internal/metrics"
	"github.com/chesscore/realtime/internal/models"
	"github.com/chesscore/realtime/internal/store"
)

// Config mirrors the batching policy of §4.9.
type Config struct {
	HighBatchSize     int
	HighFlushAfter    time.Duration
	MediumBatchSize   int
	MediumFlushAfter  time.Duration
	LowMaxQueueDepth  int
	MaxRetries        int
	RetryBaseDelay    time.Duration
}

// Job is one queued write derived from an envelope.
type Job struct {
	Env      models.Envelope
	Priority models.Priority
}

// DeadLetterSink receives jobs that exhausted all retries.
type DeadLetterSink func(job Job, err error)

// Pipeline is the PersistencePipeline component.
type Pipeline struct {
	durable store.DurableStore
	cfg     Config
	logger  *zap.Logger
	deadLetter DeadLetterSink

	high   chan Job
	medium chan Job
	low    chan Job

	wg sync.WaitGroup
	stop chan struct{}
}

// New constructs a Pipeline. Call Subscribe to wire it to a Bus, then
// Start to begin the batch-flush loops.
func New(durable store.DurableStore, cfg Config, deadLetter DeadLetterSink, logger *zap.Logger) *Pipeline {
	if deadLetter == nil {
		deadLetter = func(job Job, err error) {
			metrics.PipelineDeadLetters.Inc()
			logger.Error("persistence: job dropped to dead letter",
				zap.String("gameId", job.Env.GameID),
				zap.String("eventType", string(job.Env.EventType)),
				zap.Error(err))
		}
	}
	return &Pipeline{
		durable:    durable,
		cfg:        cfg,
		logger:     logger,
		deadLetter: deadLetter,
		high:       make(chan Job, cfg.HighBatchSize*4),
		medium:     make(chan Job, cfg.MediumBatchSize*4),
		low:        make(chan Job, cfg.LowMaxQueueDepth),
		stop:       make(chan struct{}),
	}
}

// Subscribe registers the pipeline as an EventBus consumer for every
// channel class that carries events destined for DurableStore.
func (p *Pipeline) Subscribe(bus *eventbus.Bus) {
	handler := func(ctx context.Context, env models.Envelope) { p.Ingest(env) }
	bus.Subscribe(models.ChannelEvents, handler)
	bus.Subscribe(models.ChannelMoves, handler)
	bus.Subscribe(models.ChannelTime, handler)
}

// Ingest enqueues one envelope, deriving its priority (§4.9 "Priority
// derivation"). LOW-priority events are dropped when the low queue is at
// capacity, i.e. the store is backpressuring.
func (p *Pipeline) Ingest(env models.Envelope) {
	priority := priorityFor(env)
	job := Job{Env: env, Priority: priority}

	switch priority {
	case models.PriorityHigh:
		select {
		case p.high <- job:
		default:
			// HIGH events must never be lost; block until there is room rather than drop.
			p.high <- job
		}
	case models.PriorityMedium:
		select {
		case p.medium <- job:
		default:
			p.medium <- job
		}
	default:
		select {
		case p.low <- job:
		default:
			p.logger.Debug("persistence: dropping low-priority event under backpressure",
				zap.String("eventType", string(env.EventType)))
		}
	}
}

// priorityFor implements §4.9's derivation rules.
func priorityFor(env models.Envelope) models.Priority {
	switch env.EventType {
	case models.EventGameEnded, models.EventPlayerResigned, models.EventDrawAccepted, models.EventRatingUpdated:
		return models.PriorityHigh
	case models.EventMoveMade:
		return moveMadePriority(env)
	case models.EventTimeUpdate:
		return timeUpdatePriority(env)
	default:
		return models.PriorityLow
	}
}

func moveMadePriority(env models.Envelope) models.Priority {
	if terminal, ok := env.Payload["terminal"].(bool); ok && terminal {
		return models.PriorityHigh
	}
	white, black := clockValues(env)
	if white < 30000 || black < 30000 {
		return models.PriorityHigh
	}
	if white+black < 600000 {
		return models.PriorityMedium
	}
	return models.PriorityMedium
}

func timeUpdatePriority(env models.Envelope) models.Priority {
	white, black := clockValues(env)
	min := white
	if black < min {
		min = black
	}
	switch {
	case min < 10000:
		return models.PriorityHigh
	case min < 60000:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

func clockValues(env models.Envelope) (white, black int64) {
	var tlm map[models.Color]int64
	if !decodeField(env.Payload, "timeLeftMs", &tlm) {
		return 1 << 30, 1 << 30 // unknown clocks never trigger urgency promotion
	}
	return tlm[models.ColorWhite], tlm[models.ColorBlack]
}

// Start launches the three priority queues' batch-accumulate-and-flush
// loops.
func (p *Pipeline) Start(ctx context.Context) {
	p.wg.Add(3)
	go p.runQueue(ctx, p.high, p.cfg.HighBatchSize, p.cfg.HighFlushAfter)
	go p.runQueue(ctx, p.medium, p.cfg.MediumBatchSize, p.cfg.MediumFlushAfter)
	go p.runQueue(ctx, p.low, p.cfg.MediumBatchSize, p.cfg.MediumFlushAfter*2)
}

func (p *Pipeline) runQueue(ctx context.Context, ch chan Job, maxBatch int, flushAfter time.Duration) {
	defer p.wg.Done()
	timer := time.NewTimer(flushAfter)
	defer timer.Stop()

	var batch []Job
	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.applyBatch(ctx, batch)
		batch = nil
	}

	for {
		select {
		case <-p.stop:
			flush()
			return
		case job := <-ch:
			batch = append(batch, job)
			if len(batch) >= maxBatch {
				flush()
				timer.Reset(flushAfter)
			}
		case <-timer.C:
			flush()
			timer.Reset(flushAfter)
		}
	}
}

// applyBatch writes every job in a batch, retrying failures individually
// with exponential backoff up to MaxRetries before routing to the dead
// letter sink (§4.9 "Failure").
func (p *Pipeline) applyBatch(ctx context.Context, batch []Job) {
	if len(batch) > 0 {
		metrics.PipelineBatchSize.WithLabelValues(priorityLabel(batch[0].Priority)).Observe(float64(len(batch)))
	}
	for _, job := range batch {
		if err := p.applyWithRetry(ctx, job); err != nil {
			p.deadLetter(job, err)
		}
	}
}

func priorityLabel(pr models.Priority) string {
	switch pr {
	case models.PriorityHigh:
		return "high"
	case models.PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

func (p *Pipeline) applyWithRetry(ctx context.Context, job Job) error {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := p.apply(ctx, job.Env); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// apply performs the per-event-type write operation (§4.9 "Write
// operations").
func (p *Pipeline) apply(ctx context.Context, env models.Envelope) error {
	switch env.EventType {
	case models.EventGameStarted:
		return p.applyGameStarted(ctx, env)
	case models.EventMoveMade:
		return p.applyMoveMade(ctx, env)
	case models.EventGameEnded, models.EventPlayerResigned, models.EventDrawAccepted:
		return p.applyGameEnded(ctx, env)
	case models.EventRatingUpdated:
		return p.applyRatingUpdated(ctx, env)
	default:
		return nil // analytics-class events have no durable write
	}
}

// Stop halts all queue loops after flushing whatever has accumulated,
// matching the shutdown order in §5 ("Server shutdown flushes pending
// batches").
func (p *Pipeline) Stop() {
	close(p.stop)
	p.wg.Wait()
}
