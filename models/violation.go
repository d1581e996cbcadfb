package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ViolationType identifies which legal threshold a listing exceeded.
type ViolationType string

const (
	// ViolationFMRRate flags a price above the fair-market-rent ceiling.
	ViolationFMRRate ViolationType = "fmr_rate"
	// ViolationPriceIncrease flags an increase above the allowed cap since
	// the baseline date.
	ViolationPriceIncrease ViolationType = "price_increase"
)

// Violation is one detected threshold excess for a listing. ReferencePrice
// is the ceiling or baseline the listing was compared against and
// ObservedPrice the advertised price that exceeded it. Violations are
// created per run and never mutated after persistence.
type Violation struct {
	ListingID      string          `json:"listing_id"`
	Type           ViolationType   `json:"violation_type"`
	ReferencePrice decimal.Decimal `json:"reference_price"`
	ObservedPrice  decimal.Decimal `json:"observed_price"`
	AccessedDate   time.Time       `json:"accessed_date"`
}

// Key returns the natural key used for storage deduplication.
func (v Violation) Key() string {
	return fmt.Sprintf("%s|%s|%s", v.ListingID, v.Type, v.AccessedDate.Format("2006-01-02"))
}
