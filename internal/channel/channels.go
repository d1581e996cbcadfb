package channel

import (
	"context"
	"sync"

	"github.com/ehutt/rent-radar/logger"
	"github.com/ehutt/rent-radar/models"
)

type ChannelStats struct {
	RawSent        int64
	RawDropped     int64
	ViolationsSent int64
	ArchiveSent    int64
	ArchiveDropped int64
}

// Channels wires the pipeline stages together: readers feed Raw, the
// processor feeds Violations and Archive.
type Channels struct {
	Raw        chan models.RawListingMessage
	Violations chan models.Violation
	Archive    chan models.SnapshotBatch

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBuffer, violationBuffer, archiveBuffer int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:        make(chan models.RawListingMessage, rawBuffer),
		Violations: make(chan models.Violation, violationBuffer),
		Archive:    make(chan models.SnapshotBatch, archiveBuffer),
		log:        log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_buffer":       rawBuffer,
		"violation_buffer": violationBuffer,
		"archive_buffer":   archiveBuffer,
	}).Info("pipeline channels initialized")

	return c
}

// CloseRaw signals the processor that no more provider payloads will
// arrive. Called once all readers have finished.
func (c *Channels) CloseRaw() {
	close(c.Raw)
	c.log.WithComponent("channels").Info("raw channel closed")
}

// CloseOutputs signals the writers that the processor has drained. Called
// once after the processor stops.
func (c *Channels) CloseOutputs() {
	close(c.Violations)
	close(c.Archive)
	c.log.WithComponent("channels").Info("output channels closed")
}

// SendRaw enqueues a provider payload without blocking. A full buffer drops
// the message; the reader retries paging regardless, so drops only shed
// load, they never corrupt results.
func (c *Channels) SendRaw(ctx context.Context, msg models.RawListingMessage) bool {
	select {
	case c.Raw <- msg:
		c.incrementRawSent()
		logger.RecordChannelMessage("raw", len(msg.Data))
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementRawDropped()
		return false
	}
}

// SendViolation blocks until the writer accepts the violation. Findings
// are the product of the run and are never shed under backpressure.
func (c *Channels) SendViolation(ctx context.Context, v models.Violation) bool {
	select {
	case c.Violations <- v:
		c.incrementViolationsSent()
		logger.RecordChannelMessage("violations", 1)
		return true
	case <-ctx.Done():
		return false
	}
}

// SendArchive enqueues a snapshot batch without blocking; archive data is
// best-effort.
func (c *Channels) SendArchive(ctx context.Context, batch models.SnapshotBatch) bool {
	select {
	case c.Archive <- batch:
		c.incrementArchiveSent()
		logger.RecordChannelMessage("archive", batch.RecordCount)
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementArchiveDropped()
		return false
	}
}

func (c *Channels) incrementRawSent() {
	c.statsMutex.Lock()
	c.stats.RawSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementRawDropped() {
	c.statsMutex.Lock()
	c.stats.RawDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementViolationsSent() {
	c.statsMutex.Lock()
	c.stats.ViolationsSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementArchiveSent() {
	c.statsMutex.Lock()
	c.stats.ArchiveSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementArchiveDropped() {
	c.statsMutex.Lock()
	c.stats.ArchiveDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
