package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawListingMessage carries one provider payload from a reader to the
// processor before any validation has happened.
type RawListingMessage struct {
	City      string
	State     string
	Data      []byte
	Timestamp time.Time
	Page      int
}

// PriceRecord is a single observed price in a listing's history.
// Furnished is nil when the provider did not report the furnished state
// for that observation.
type PriceRecord struct {
	Price        decimal.Decimal `json:"price"`
	ObservedDate time.Time       `json:"observed_date"`
	Furnished    *bool           `json:"furnished,omitempty"`
}

// Snapshot is the normalized, immutable view of one listing used as input
// to rule evaluation. PriceHistory is sorted ascending by ObservedDate and
// every price in it is positive; construction enforces both.
type Snapshot struct {
	ListingID     string          `json:"listing_id"`
	ZipCode       string          `json:"zip_code"`
	Bedrooms      int             `json:"bedrooms"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	Furnished     bool            `json:"furnished"`
	FirstSeenDate time.Time       `json:"first_seen_date"`
	PriceHistory  []PriceRecord   `json:"price_history,omitempty"`
	AccessedDate  time.Time       `json:"accessed_date"`
	City          string          `json:"city"`
	State         string          `json:"state"`
}

// SnapshotBatch groups evaluated snapshots for the archive writer.
type SnapshotBatch struct {
	BatchID     string     `json:"batch_id"`
	City        string     `json:"city"`
	State       string     `json:"state"`
	Snapshots   []Snapshot `json:"snapshots"`
	RecordCount int        `json:"record_count"`
	Timestamp   time.Time  `json:"timestamp"`
}
