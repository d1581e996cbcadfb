package processor

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	appconfig "github.com/ehutt/rent-radar/config"
	"github.com/ehutt/rent-radar/internal/fmr"
	"github.com/ehutt/rent-radar/models"
)

// Params carries the jurisdiction thresholds the rules evaluate against.
// They come from configuration so a date or percentage change in the order
// never requires a logic change.
type Params struct {
	BaselineCutoff  time.Time
	RelistingCutoff time.Time
	FMRMultiple     decimal.Decimal
	BaseIncreaseCap decimal.Decimal
	FurnishedBonus  decimal.Decimal
}

// ParamsFromConfig resolves the rule parameters from the loaded
// configuration, deriving the cutoff dates from the declaration date where
// they are not set explicitly.
func ParamsFromConfig(cfg *appconfig.Config) (Params, error) {
	if cfg.Rules.DeclarationTime().IsZero() {
		return Params{}, fmt.Errorf("rules.declaration_date is not set or not a valid date")
	}
	return Params{
		BaselineCutoff:  cfg.Rules.BaselineCutoffTime(),
		RelistingCutoff: cfg.Rules.RelistingCutoffTime(),
		FMRMultiple:     decimal.NewFromFloat(cfg.Rules.FMRMultiple),
		BaseIncreaseCap: decimal.NewFromFloat(cfg.Rules.BaseIncreaseCap),
		FurnishedBonus:  decimal.NewFromFloat(cfg.Rules.FurnishedBonus),
	}, nil
}

// Engine evaluates one snapshot at a time against both rules. It holds no
// cross-listing state, so evaluations are order-independent and safe to run
// from concurrent workers.
type Engine struct {
	params Params
	table  *fmr.Table
}

// NewEngine builds an evaluation engine over an already-loaded reference
// table.
func NewEngine(params Params, table *fmr.Table) *Engine {
	return &Engine{params: params, table: table}
}

// Evaluate runs both rules independently and returns zero, one or two
// violations. The returned flag reports a reference-data gap: the FMR table
// had no entry for the snapshot's zip and bedroom count, so the ceiling rule
// was skipped while the increase rule still ran.
func (e *Engine) Evaluate(snap models.Snapshot) ([]models.Violation, bool) {
	var violations []models.Violation

	baseline, furnishedAdded, hasBaseline := e.baseline(snap)

	referenceGap := false
	if e.ceilingRuleApplies(snap, hasBaseline) {
		fmrValue, err := e.table.Lookup(snap.ZipCode, snap.Bedrooms)
		if err != nil {
			referenceGap = true
		} else {
			ceiling := fmrValue.Mul(e.params.FMRMultiple)
			if snap.CurrentPrice.GreaterThan(ceiling) {
				violations = append(violations, models.Violation{
					ListingID:      snap.ListingID,
					Type:           models.ViolationFMRRate,
					ReferencePrice: ceiling,
					ObservedPrice:  snap.CurrentPrice,
					AccessedDate:   snap.AccessedDate,
				})
			}
		}
	}

	if hasBaseline {
		allowed := decimal.NewFromInt(1).Add(e.params.BaseIncreaseCap)
		if furnishedAdded {
			allowed = allowed.Add(e.params.FurnishedBonus)
		}
		maxAllowed := baseline.Price.Mul(allowed)
		if snap.CurrentPrice.GreaterThan(maxAllowed) {
			violations = append(violations, models.Violation{
				ListingID:      snap.ListingID,
				Type:           models.ViolationPriceIncrease,
				ReferencePrice: baseline.Price,
				ObservedPrice:  snap.CurrentPrice,
				AccessedDate:   snap.AccessedDate,
			})
		}
	}

	return violations, referenceGap
}

// ceilingRuleApplies reports whether the snapshot counts as newly listed or
// relisted: first seen on or after the relisting cutoff, or lacking any
// usable baseline to compare increases against.
func (e *Engine) ceilingRuleApplies(snap models.Snapshot, hasBaseline bool) bool {
	if !hasBaseline {
		return true
	}
	return !snap.FirstSeenDate.IsZero() && !snap.FirstSeenDate.Before(e.params.RelistingCutoff)
}

// baseline selects the most recent history entry observed strictly before
// the baseline cutoff. furnishedAdded is true only when that entry is known
// unfurnished and the unit is furnished now; an untracked furnished state at
// the baseline keeps the allowance at the base cap.
func (e *Engine) baseline(snap models.Snapshot) (models.PriceRecord, bool, bool) {
	var best models.PriceRecord
	found := false
	for _, rec := range snap.PriceHistory {
		if !rec.ObservedDate.Before(e.params.BaselineCutoff) {
			continue
		}
		if !found || rec.ObservedDate.After(best.ObservedDate) {
			best = rec
			found = true
		}
	}
	if !found {
		return models.PriceRecord{}, false, false
	}
	furnishedAdded := snap.Furnished && best.Furnished != nil && !*best.Furnished
	return best, furnishedAdded, true
}
