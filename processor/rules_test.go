package processor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ehutt/rent-radar/internal/fmr"
	"github.com/ehutt/rent-radar/models"
)

var (
	baselineCutoff  = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	relistingCutoff = time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	accessedDate    = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
)

func testParams() Params {
	return Params{
		BaselineCutoff:  baselineCutoff,
		RelistingCutoff: relistingCutoff,
		FMRMultiple:     decimal.NewFromFloat(1.60),
		BaseIncreaseCap: decimal.NewFromFloat(0.10),
		FurnishedBonus:  decimal.NewFromFloat(0.05),
	}
}

// testTable loads a reference table with known rents for zips 90001
// (2BR=1800) and 90002 (2BR=1000).
func testTable(t *testing.T) *fmr.Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "safmr.csv")
	csv := `ZIP Code,Two-Bedroom
90001,"$1,800"
90002,"$1,000"
`
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("failed to write reference csv: %v", err)
	}
	table, err := fmr.Load(path)
	if err != nil {
		t.Fatalf("failed to load reference table: %v", err)
	}
	return table
}

func price(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func boolPtr(b bool) *bool { return &b }

func newSnapshot() models.Snapshot {
	return models.Snapshot{
		ListingID:     "listing-1",
		ZipCode:       "90001",
		Bedrooms:      2,
		CurrentPrice:  price(2000),
		FirstSeenDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		AccessedDate:  accessedDate,
		City:          "Los Angeles",
		State:         "CA",
	}
}

func historyEntry(p float64, date string, furnished *bool) models.PriceRecord {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return models.PriceRecord{Price: price(p), ObservedDate: d, Furnished: furnished}
}

func requireTypes(t *testing.T, violations []models.Violation, want ...models.ViolationType) {
	t.Helper()
	if len(violations) != len(want) {
		t.Fatalf("expected %d violations, got %d: %+v", len(want), len(violations), violations)
	}
	seen := make(map[models.ViolationType]bool)
	for _, v := range violations {
		seen[v.Type] = true
	}
	for _, w := range want {
		if !seen[w] {
			t.Fatalf("expected violation type %s in %+v", w, violations)
		}
	}
}

func TestCeilingBoundaryIsNotAViolation(t *testing.T) {
	engine := NewEngine(testParams(), testTable(t))

	// 90002 2BR rent 1000, ceiling exactly 1600
	snap := newSnapshot()
	snap.ZipCode = "90002"
	snap.CurrentPrice = price(1600)

	violations, gap := engine.Evaluate(snap)
	if gap {
		t.Fatal("unexpected reference gap")
	}
	requireTypes(t, violations)

	snap.CurrentPrice = price(1600.01)
	violations, _ = engine.Evaluate(snap)
	requireTypes(t, violations, models.ViolationFMRRate)
	if !violations[0].ReferencePrice.Equal(price(1600)) {
		t.Errorf("expected reference 1600, got %s", violations[0].ReferencePrice)
	}
}

func TestIncreaseBoundaryIsNotAViolation(t *testing.T) {
	engine := NewEngine(testParams(), testTable(t))

	snap := newSnapshot()
	snap.FirstSeenDate = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC) // long-standing listing
	snap.PriceHistory = []models.PriceRecord{historyEntry(1000, "2024-06-01", nil)}
	snap.CurrentPrice = price(1100) // exactly baseline x 1.10

	violations, _ := engine.Evaluate(snap)
	requireTypes(t, violations)

	snap.CurrentPrice = price(1100.01)
	violations, _ = engine.Evaluate(snap)
	requireTypes(t, violations, models.ViolationPriceIncrease)
	if !violations[0].ReferencePrice.Equal(price(1000)) {
		t.Errorf("expected reference 1000, got %s", violations[0].ReferencePrice)
	}
}

func TestFurnishedBonusRaisesAllowance(t *testing.T) {
	engine := NewEngine(testParams(), testTable(t))

	snap := newSnapshot()
	snap.FirstSeenDate = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	snap.Furnished = true
	snap.PriceHistory = []models.PriceRecord{historyEntry(1000, "2024-06-01", boolPtr(false))}

	snap.CurrentPrice = price(1149)
	violations, _ := engine.Evaluate(snap)
	requireTypes(t, violations)

	snap.CurrentPrice = price(1151)
	violations, _ = engine.Evaluate(snap)
	requireTypes(t, violations, models.ViolationPriceIncrease)
	if !violations[0].ReferencePrice.Equal(price(1000)) {
		t.Errorf("expected reference 1000, got %s", violations[0].ReferencePrice)
	}
}

func TestFurnishedStateUntrackedUsesBaseCap(t *testing.T) {
	engine := NewEngine(testParams(), testTable(t))

	snap := newSnapshot()
	snap.FirstSeenDate = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	snap.Furnished = true
	snap.PriceHistory = []models.PriceRecord{historyEntry(1000, "2024-06-01", nil)}
	snap.CurrentPrice = price(1120) // above 10% cap, below 15%

	violations, _ := engine.Evaluate(snap)
	requireTypes(t, violations, models.ViolationPriceIncrease)
}

func TestBaselineSelectsMostRecentBeforeCutoff(t *testing.T) {
	engine := NewEngine(testParams(), testTable(t))

	snap := newSnapshot()
	snap.FirstSeenDate = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	snap.PriceHistory = []models.PriceRecord{
		historyEntry(900, "2024-02-01", nil),
		historyEntry(1000, "2024-11-01", nil),
		historyEntry(1300, "2025-02-01", nil), // after cutoff, ignored
	}
	snap.CurrentPrice = price(1150)

	violations, _ := engine.Evaluate(snap)
	requireTypes(t, violations, models.ViolationPriceIncrease)
	if !violations[0].ReferencePrice.Equal(price(1000)) {
		t.Errorf("expected most recent pre-cutoff baseline 1000, got %s", violations[0].ReferencePrice)
	}
}

func TestNoBaselineProducesNoIncreaseCandidate(t *testing.T) {
	engine := NewEngine(testParams(), testTable(t))

	snap := newSnapshot()
	snap.FirstSeenDate = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	snap.PriceHistory = []models.PriceRecord{historyEntry(1000, "2025-02-01", nil)}
	snap.CurrentPrice = price(2500)

	// No entry before the cutoff: increase rule silent, but the listing
	// counts as lacking usable history so the ceiling rule applies even
	// though it was first seen before the relisting cutoff.
	violations, _ := engine.Evaluate(snap)
	requireTypes(t, violations)

	snap.CurrentPrice = price(2900) // above 1800 x 1.60
	violations, _ = engine.Evaluate(snap)
	requireTypes(t, violations, models.ViolationFMRRate)
}

func TestLongStandingListingSkipsCeilingRule(t *testing.T) {
	engine := NewEngine(testParams(), testTable(t))

	snap := newSnapshot()
	snap.FirstSeenDate = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	snap.PriceHistory = []models.PriceRecord{historyEntry(2900, "2024-06-01", nil)}
	snap.CurrentPrice = price(3000) // way above the 2880 ceiling

	// First seen before the relisting cutoff with a usable baseline: the
	// ceiling rule does not apply, and 3000 is within 10% of 2900.
	violations, gap := engine.Evaluate(snap)
	if gap {
		t.Fatal("unexpected reference gap")
	}
	requireTypes(t, violations)
}

func TestFurnishedDoesNotAlterCeiling(t *testing.T) {
	engine := NewEngine(testParams(), testTable(t))

	snap := newSnapshot()
	snap.Furnished = true
	snap.CurrentPrice = price(2881) // ceiling stays 1800 x 1.60 = 2880

	violations, _ := engine.Evaluate(snap)
	requireTypes(t, violations, models.ViolationFMRRate)
	if !violations[0].ReferencePrice.Equal(price(2880)) {
		t.Errorf("expected ceiling 2880 regardless of furnished flag, got %s", violations[0].ReferencePrice)
	}
}

func TestBothRulesFireIndependently(t *testing.T) {
	engine := NewEngine(testParams(), testTable(t))

	snap := newSnapshot()
	snap.ZipCode = "90002" // rent 1000, ceiling 1600
	snap.PriceHistory = []models.PriceRecord{historyEntry(1400, "2024-06-01", nil)}
	snap.CurrentPrice = price(1700)

	violations, _ := engine.Evaluate(snap)
	requireTypes(t, violations, models.ViolationFMRRate, models.ViolationPriceIncrease)
	for _, v := range violations {
		switch v.Type {
		case models.ViolationFMRRate:
			if !v.ReferencePrice.Equal(price(1600)) {
				t.Errorf("ceiling violation: expected reference 1600, got %s", v.ReferencePrice)
			}
		case models.ViolationPriceIncrease:
			if !v.ReferencePrice.Equal(price(1400)) {
				t.Errorf("increase violation: expected reference 1400, got %s", v.ReferencePrice)
			}
		}
		if !v.ObservedPrice.Equal(price(1700)) {
			t.Errorf("expected observed 1700, got %s", v.ObservedPrice)
		}
		if !v.AccessedDate.Equal(accessedDate) {
			t.Errorf("expected accessed date stamp %s, got %s", accessedDate, v.AccessedDate)
		}
	}
}

func TestReferenceGapSkipsCeilingRuleOnly(t *testing.T) {
	engine := NewEngine(testParams(), testTable(t))

	snap := newSnapshot()
	snap.ZipCode = "99999"
	snap.PriceHistory = []models.PriceRecord{historyEntry(1000, "2024-06-01", nil)}
	snap.CurrentPrice = price(5000)

	violations, gap := engine.Evaluate(snap)
	if !gap {
		t.Fatal("expected reference gap to be reported")
	}
	requireTypes(t, violations, models.ViolationPriceIncrease)

	// Other listings still evaluate normally after the gap.
	other := newSnapshot()
	other.CurrentPrice = price(3000)
	violations, gap = engine.Evaluate(other)
	if gap {
		t.Fatal("unexpected reference gap for known zip")
	}
	requireTypes(t, violations, models.ViolationFMRRate)
}

func TestWorkedExample(t *testing.T) {
	engine := NewEngine(testParams(), testTable(t))

	snap := newSnapshot()
	snap.ZipCode = "90001" // 2BR rent 1800
	snap.CurrentPrice = price(3000)
	snap.PriceHistory = []models.PriceRecord{historyEntry(1500, "2024-06-01", nil)}

	violations, gap := engine.Evaluate(snap)
	if gap {
		t.Fatal("unexpected reference gap")
	}
	requireTypes(t, violations, models.ViolationFMRRate, models.ViolationPriceIncrease)
	for _, v := range violations {
		switch v.Type {
		case models.ViolationFMRRate:
			if !v.ReferencePrice.Equal(price(2880)) {
				t.Errorf("expected ceiling 2880, got %s", v.ReferencePrice)
			}
		case models.ViolationPriceIncrease:
			if !v.ReferencePrice.Equal(price(1500)) {
				t.Errorf("expected baseline 1500, got %s", v.ReferencePrice)
			}
		}
	}
}
