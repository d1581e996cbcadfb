package processor

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ehutt/rent-radar/models"
)

// MalformedSnapshotError reports a provider payload that cannot be turned
// into a usable snapshot. It is recovered per listing; the run continues.
type MalformedSnapshotError struct {
	ListingID string
	Reason    string
}

func (e *MalformedSnapshotError) Error() string {
	if e.ListingID == "" {
		return fmt.Sprintf("malformed listing payload: %s", e.Reason)
	}
	return fmt.Sprintf("malformed listing %s: %s", e.ListingID, e.Reason)
}

const dateLayout = "2006-01-02"

// parseProviderDate accepts both plain dates and full RFC3339 timestamps,
// which RentCast mixes freely.
func parseProviderDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// BuildSnapshot validates one raw provider payload and normalizes it into a
// Snapshot. History entries without a positive price are dropped and the
// surviving entries are sorted ascending by observation date.
func BuildSnapshot(raw models.RawListingMessage, accessed time.Time) (models.Snapshot, error) {
	var listing models.RentCastListing
	if err := json.Unmarshal(raw.Data, &listing); err != nil {
		return models.Snapshot{}, &MalformedSnapshotError{Reason: fmt.Sprintf("invalid json: %v", err)}
	}

	if listing.ID == "" {
		return models.Snapshot{}, &MalformedSnapshotError{Reason: "missing listing id"}
	}
	if listing.ZipCode == "" {
		return models.Snapshot{}, &MalformedSnapshotError{ListingID: listing.ID, Reason: "missing zip code"}
	}
	if listing.Bedrooms == nil || *listing.Bedrooms < 0 {
		return models.Snapshot{}, &MalformedSnapshotError{ListingID: listing.ID, Reason: "missing bedroom count"}
	}
	if listing.Price == nil || *listing.Price <= 0 {
		return models.Snapshot{}, &MalformedSnapshotError{ListingID: listing.ID, Reason: "missing or non-positive price"}
	}

	firstSeen, ok := parseProviderDate(listing.ListedDate)
	if !ok {
		firstSeen, _ = parseProviderDate(listing.CreatedDate)
	}

	history := make([]models.PriceRecord, 0, len(listing.History))
	for dateKey, event := range listing.History {
		observed, ok := parseProviderDate(dateKey)
		if !ok {
			continue
		}
		if event.Price == nil || *event.Price <= 0 {
			continue
		}
		history = append(history, models.PriceRecord{
			Price:        decimal.NewFromFloat(*event.Price),
			ObservedDate: observed,
			Furnished:    event.Furnished,
		})
	}
	sort.Slice(history, func(i, j int) bool {
		return history[i].ObservedDate.Before(history[j].ObservedDate)
	})

	return models.Snapshot{
		ListingID:     listing.ID,
		ZipCode:       listing.ZipCode,
		Bedrooms:      *listing.Bedrooms,
		CurrentPrice:  decimal.NewFromFloat(*listing.Price),
		Furnished:     listing.Furnished != nil && *listing.Furnished,
		FirstSeenDate: firstSeen,
		PriceHistory:  history,
		AccessedDate:  accessed,
		City:          raw.City,
		State:         raw.State,
	}, nil
}
