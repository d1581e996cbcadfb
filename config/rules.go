package config

import "time"

const dateLayout = "2006-01-02"

// DeclarationTime returns the parsed declaration date. The zero time is
// returned when the config has not been validated.
func (r RulesConfig) DeclarationTime() time.Time {
	t, _ := time.Parse(dateLayout, r.DeclarationDate)
	return t
}

// BaselineCutoffTime returns the explicit baseline cutoff when set and
// otherwise derives it as the day before the declaration. History entries
// strictly before this date anchor the price-increase comparison.
func (r RulesConfig) BaselineCutoffTime() time.Time {
	if r.BaselineCutoffDate != "" {
		t, _ := time.Parse(dateLayout, r.BaselineCutoffDate)
		return t
	}
	return r.DeclarationTime().AddDate(0, 0, -1)
}

// RelistingCutoffTime returns the explicit relisting cutoff when set and
// otherwise derives it as one year before the declaration. Listings first
// seen on or after this date count as newly listed or relisted.
func (r RulesConfig) RelistingCutoffTime() time.Time {
	if r.RelistingCutoffDate != "" {
		t, _ := time.Parse(dateLayout, r.RelistingCutoffDate)
		return t
	}
	return r.DeclarationTime().AddDate(-1, 0, 0)
}
