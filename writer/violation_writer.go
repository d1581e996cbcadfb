package writer

import (
	"context"
	"fmt"
	"sync"

	appconfig "github.com/ehutt/rent-radar/config"
	"github.com/ehutt/rent-radar/internal/channel"
	"github.com/ehutt/rent-radar/logger"
)

// ViolationWriter drains detected violations from the pipeline and persists
// them through a ViolationStore. A store failure for one violation is
// logged and counted; the rest of the run continues.
type ViolationWriter struct {
	cfg      *appconfig.Config
	store    ViolationStore
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.Mutex
	running  bool
	log      *logger.Log
}

// NewViolationWriter creates a writer over an already-opened store.
func NewViolationWriter(cfg *appconfig.Config, store ViolationStore, ch *channel.Channels) *ViolationWriter {
	return &ViolationWriter{
		cfg:      cfg,
		store:    store,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Start launches the persistence worker.
func (w *ViolationWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("violation writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	w.wg.Add(1)
	go w.worker()

	w.log.WithComponent("violation_writer").Info("violation writer started")
	return nil
}

// Stop waits for the worker to finish draining the violations channel.
func (w *ViolationWriter) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()
	w.log.WithComponent("violation_writer").Info("violation writer stopped")
}

func (w *ViolationWriter) worker() {
	defer w.wg.Done()
	log := w.log.WithComponent("violation_writer")

	for {
		select {
		case <-w.ctx.Done():
			return
		case v, ok := <-w.channels.Violations:
			if !ok {
				return
			}
			inserted, err := w.store.InsertIfAbsent(w.ctx, v)
			if err != nil {
				log.WithError(err).WithFields(logger.Fields{
					"listing_id":     v.ListingID,
					"violation_type": v.Type,
				}).Error("failed to persist violation")
				continue
			}
			if inserted {
				logger.IncrementStoreInsert()
			} else {
				logger.IncrementStoreDuplicate()
				log.WithFields(logger.Fields{
					"listing_id":     v.ListingID,
					"violation_type": v.Type,
				}).Debug("violation already recorded for this date")
			}
		}
	}
}
