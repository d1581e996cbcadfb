package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestViolationKey(t *testing.T) {
	v := Violation{
		ListingID:      "1234-Main-St",
		Type:           ViolationFMRRate,
		ReferencePrice: decimal.RequireFromString("2880"),
		ObservedPrice:  decimal.RequireFromString("3000"),
		AccessedDate:   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	want := "1234-Main-St|fmr_rate|2025-02-01"
	if got := v.Key(); got != want {
		t.Fatalf("unexpected key: %s != %s", got, want)
	}
}

func TestViolationKeyIgnoresTimeOfDay(t *testing.T) {
	a := Violation{ListingID: "x", Type: ViolationPriceIncrease,
		AccessedDate: time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)}
	b := a
	b.AccessedDate = time.Date(2025, 2, 1, 23, 0, 0, 0, time.UTC)
	if a.Key() != b.Key() {
		t.Fatalf("keys for the same day must match: %s != %s", a.Key(), b.Key())
	}
}

func TestRentCastListingDecode(t *testing.T) {
	payload := `{
		"id": "90001-2br",
		"zipCode": "90001",
		"bedrooms": 2,
		"price": 3000,
		"status": "Active",
		"listedDate": "2025-01-10T00:00:00.000Z",
		"history": {
			"2024-06-01": {"event": "Rental Listing", "price": 1500},
			"2024-09-01": {"event": "Price Change"}
		},
		"latitude": 33.97,
		"mlsNumber": "ignored"
	}`
	var l RentCastListing
	if err := json.Unmarshal([]byte(payload), &l); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if l.ID != "90001-2br" || l.ZipCode != "90001" {
		t.Fatalf("identity fields mismatch: %+v", l)
	}
	if l.Bedrooms == nil || *l.Bedrooms != 2 {
		t.Fatalf("bedrooms not decoded: %+v", l.Bedrooms)
	}
	if l.Price == nil || *l.Price != 3000 {
		t.Fatalf("price not decoded: %+v", l.Price)
	}
	if len(l.History) != 2 {
		t.Fatalf("expected 2 history events, got %d", len(l.History))
	}
	if ev := l.History["2024-09-01"]; ev.Price != nil {
		t.Fatalf("priceless event should decode with nil price: %+v", ev)
	}
}
