package rentcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	appconfig "github.com/ehutt/rent-radar/config"
	"github.com/ehutt/rent-radar/internal/channel"
	"github.com/ehutt/rent-radar/logger"
	"github.com/ehutt/rent-radar/models"
)

// Reader pages through the RentCast listings endpoint for every configured
// city and forwards each listing payload into the raw channel. Cities are
// fetched concurrently and a failed city does not abort the others.
type Reader struct {
	config   *appconfig.Config
	client   *Client
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

// NewReader creates a reader over the configured cities.
func NewReader(cfg *appconfig.Config, ch *channel.Channels) *Reader {
	return &Reader{
		config:   cfg,
		client:   NewClient(cfg),
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Start launches one paging worker per city. It returns once the workers
// are launched; use Wait to block until the crawl finishes.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("rentcast reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("rentcast_reader").WithFields(logger.Fields{"operation": "Start"})

	cities := r.config.Source.RentCast.Cities
	if len(cities) == 0 {
		return fmt.Errorf("no cities configured")
	}

	log.WithFields(logger.Fields{
		"cities": cities,
		"state":  r.config.Source.RentCast.State,
	}).Info("starting rentcast reader")

	for _, city := range cities {
		r.wg.Add(1)
		go r.crawlCity(city)
	}

	log.Info("rentcast reader started successfully")
	return nil
}

// Wait blocks until every city worker has finished paging.
func (r *Reader) Wait() {
	r.wg.Wait()
}

// Stop waits for the workers and marks the reader stopped.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
	r.log.WithComponent("rentcast_reader").Info("stopping rentcast reader")
	r.wg.Wait()
	r.log.WithComponent("rentcast_reader").Info("rentcast reader stopped")
}

// crawlCity pages through one city until a short page, the configured page
// cap, or context cancellation. Fetch errors end the city but are isolated
// from the rest of the run.
func (r *Reader) crawlCity(city string) {
	defer r.wg.Done()
	log := r.log.WithComponent("rentcast_reader").WithFields(logger.Fields{"city": city, "worker": "city_crawler"})

	maxPages := r.config.Source.RentCast.MaxPages
	pageLimit := r.client.PageLimit()
	state := r.config.Source.RentCast.State

	total := 0
	for page := 0; maxPages <= 0 || page < maxPages; page++ {
		select {
		case <-r.ctx.Done():
			log.Info("city crawl stopped due to context cancellation")
			return
		default:
		}

		listings, err := r.client.FetchPage(r.ctx, city, page*pageLimit)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"page": page}).Error("failed to fetch listings page, abandoning city")
			return
		}

		for _, payload := range listings {
			msg := models.RawListingMessage{
				City:      city,
				State:     state,
				Data:      payload,
				Timestamp: time.Now().UTC(),
				Page:      page,
			}
			if r.channels.SendRaw(r.ctx, msg) {
				logger.IncrementListingRead(len(payload))
			}
		}
		total += len(listings)

		if len(listings) < pageLimit {
			break
		}
	}

	logger.LogDataFlowEntry(log, "rentcast_api", "raw_channel", total, "listings")
	log.WithFields(logger.Fields{"listings": total}).Info("city crawl complete")
}
