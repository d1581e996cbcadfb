package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "github.com/ehutt/rent-radar/config"
	"github.com/ehutt/rent-radar/internal/channel"
	"github.com/ehutt/rent-radar/internal/fmr"
	"github.com/ehutt/rent-radar/logger"
	"github.com/ehutt/rent-radar/models"
)

// batchState guards one city's in-flight archive batch.
type batchState struct {
	mu    sync.Mutex
	batch models.SnapshotBatch
}

// Processor drains raw listing payloads, normalizes them into snapshots,
// evaluates both rules on each and forwards violations and per-city archive
// batches downstream. Workers share no per-listing state, so rule outcomes
// do not depend on worker count or message order.
type Processor struct {
	config   *appconfig.Config
	engine   *Engine
	channels *channel.Channels
	accessed time.Time
	ctx      context.Context
	wg       *sync.WaitGroup
	flushWg  *sync.WaitGroup
	quit     chan struct{}
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	batches   map[string]*batchState
	lastFlush map[string]time.Time
	flushMu   sync.Mutex
}

// NewProcessor creates a processor for one run. accessed stamps every
// violation and snapshot produced by the run.
func NewProcessor(cfg *appconfig.Config, table *fmr.Table, ch *channel.Channels, accessed time.Time) (*Processor, error) {
	params, err := ParamsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build rule parameters: %w", err)
	}
	return &Processor{
		config:    cfg,
		engine:    NewEngine(params, table),
		channels:  ch,
		accessed:  accessed,
		wg:        &sync.WaitGroup{},
		flushWg:   &sync.WaitGroup{},
		quit:      make(chan struct{}),
		log:       logger.GetLogger(),
		batches:   make(map[string]*batchState),
		lastFlush: make(map[string]time.Time),
	}, nil
}

// Start launches the evaluation workers and the archive batch flusher.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	log := p.log.WithComponent("processor").WithFields(logger.Fields{"operation": "Start"})
	log.Info("starting processor")

	workers := p.config.Processor.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.flushWg.Add(1)
	go p.batchFlusher()

	log.WithFields(logger.Fields{"workers": workers}).Info("processor started successfully")
	return nil
}

// Stop waits for the workers to drain the raw channel, flushes the
// remaining archive batches and returns.
func (p *Processor) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("processor").Info("stopping processor")
	p.wg.Wait()
	close(p.quit)
	p.flushWg.Wait()
	p.flushAllBatches()
	p.log.WithComponent("processor").Info("processor stopped")
}

func (p *Processor) worker(workerID int) {
	defer p.wg.Done()

	log := p.log.WithComponent("processor").WithFields(logger.Fields{
		"worker_id": workerID,
		"worker":    "rule_evaluator",
	})

	for {
		select {
		case <-p.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case raw, ok := <-p.channels.Raw:
			if !ok {
				log.Info("raw channel closed, worker stopping")
				return
			}
			p.handleMessage(raw)
		}
	}
}

// handleMessage evaluates one raw payload. Malformed payloads and
// reference-data gaps are counted and skipped without affecting the rest of
// the run.
func (p *Processor) handleMessage(raw models.RawListingMessage) {
	log := p.log.WithComponent("processor").WithFields(logger.Fields{"city": raw.City})

	snap, err := BuildSnapshot(raw, p.accessed)
	if err != nil {
		var malformed *MalformedSnapshotError
		if errors.As(err, &malformed) {
			logger.IncrementMalformedSkip()
			log.WithError(err).Warn("skipping malformed listing payload")
			return
		}
		log.WithError(err).Error("failed to build snapshot")
		return
	}

	violations, referenceGap := p.engine.Evaluate(snap)
	logger.IncrementSnapshotEvaluated()
	if referenceGap {
		logger.IncrementReferenceGapSkip()
		log.WithFields(logger.Fields{
			"listing_id": snap.ListingID,
			"zip":        snap.ZipCode,
			"bedrooms":   snap.Bedrooms,
		}).Warn("no fmr entry for listing, ceiling rule skipped")
	}

	for _, v := range violations {
		if !p.channels.SendViolation(p.ctx, v) {
			return
		}
		logger.IncrementViolation(string(v.Type))
		log.WithFields(logger.Fields{
			"listing_id":      v.ListingID,
			"violation_type":  v.Type,
			"reference_price": v.ReferencePrice.String(),
			"observed_price":  v.ObservedPrice.String(),
		}).Info("violation detected")
	}

	p.addToBatch(snap)
}

// addToBatch appends the snapshot to its city's archive batch, flushing
// when the batch reaches the configured size.
func (p *Processor) addToBatch(snap models.Snapshot) {
	state := p.batchFor(snap.City, snap.State)

	state.mu.Lock()
	state.batch.Snapshots = append(state.batch.Snapshots, snap)
	state.batch.RecordCount = len(state.batch.Snapshots)
	full := p.config.Processor.BatchSize > 0 && state.batch.RecordCount >= p.config.Processor.BatchSize
	var out models.SnapshotBatch
	if full {
		out = state.batch
		state.batch = p.emptyBatch(snap.City, snap.State)
	}
	state.mu.Unlock()

	if full {
		p.sendBatch(out)
	}
}

func (p *Processor) batchFor(city, state string) *batchState {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	bs, ok := p.batches[city]
	if !ok {
		bs = &batchState{batch: p.emptyBatch(city, state)}
		p.batches[city] = bs
		p.lastFlush[city] = time.Now()
	}
	return bs
}

func (p *Processor) emptyBatch(city, state string) models.SnapshotBatch {
	return models.SnapshotBatch{
		BatchID:   uuid.New().String(),
		City:      city,
		State:     state,
		Timestamp: time.Now().UTC(),
	}
}

// batchFlusher pushes out partially filled batches that have been idle for
// longer than the batch timeout.
func (p *Processor) batchFlusher() {
	defer p.flushWg.Done()

	timeout := p.config.Processor.BatchTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ticker := time.NewTicker(timeout)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.quit:
			return
		case <-ticker.C:
			p.flushStale(timeout)
		}
	}
}

func (p *Processor) flushStale(timeout time.Duration) {
	now := time.Now()

	p.flushMu.Lock()
	var due []*batchState
	for city, bs := range p.batches {
		if now.Sub(p.lastFlush[city]) >= timeout {
			due = append(due, bs)
			p.lastFlush[city] = now
		}
	}
	p.flushMu.Unlock()

	for _, bs := range due {
		bs.mu.Lock()
		var out models.SnapshotBatch
		flush := len(bs.batch.Snapshots) > 0
		if flush {
			out = bs.batch
			bs.batch = p.emptyBatch(bs.batch.City, bs.batch.State)
		}
		bs.mu.Unlock()
		if flush {
			p.sendBatch(out)
		}
	}
}

func (p *Processor) flushAllBatches() {
	p.flushMu.Lock()
	states := make([]*batchState, 0, len(p.batches))
	for _, bs := range p.batches {
		states = append(states, bs)
	}
	p.flushMu.Unlock()

	for _, bs := range states {
		bs.mu.Lock()
		var out models.SnapshotBatch
		flush := len(bs.batch.Snapshots) > 0
		if flush {
			out = bs.batch
			bs.batch = p.emptyBatch(bs.batch.City, bs.batch.State)
		}
		bs.mu.Unlock()
		if flush {
			p.sendBatch(out)
		}
	}
}

func (p *Processor) sendBatch(batch models.SnapshotBatch) {
	if !p.channels.SendArchive(p.ctx, batch) {
		p.log.WithComponent("processor").WithFields(logger.Fields{
			"city":    batch.City,
			"records": batch.RecordCount,
		}).Warn("archive channel full, dropping snapshot batch")
	}
}
