package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for
// LoadConfig and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

const minimalYAML = `rentradar:
  name: "TestApp"
  version: "1.0"
channels:
  raw_buffer: 1
  violation_buffer: 1
  archive_buffer: 1
processor:
  max_workers: 1
  batch_size: 1
rules:
  declaration_date: "2025-01-07"
source:
  rentcast:
    base_url: "https://api.example.com/listings/rental/long-term"
    state: "CA"
    cities: ["Los Angeles"]
reference:
  fmr_file: "testdata/fmr.csv"
storage:
  postgres:
    enabled: false
  s3:
    enabled: false
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.RentRadar.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.RentRadar.Name)
	}
	if cfg.Source.RentCast.PageLimit != 500 {
		t.Errorf("page limit default not applied: %d", cfg.Source.RentCast.PageLimit)
	}
	if cfg.Source.RentCast.Status != "Active" {
		t.Errorf("status default not applied: %s", cfg.Source.RentCast.Status)
	}
	if cfg.Rules.FMRMultiple != 1.60 {
		t.Errorf("fmr multiple default not applied: %f", cfg.Rules.FMRMultiple)
	}
}

func TestLoadConfigMissingDeclarationDate(t *testing.T) {
	yaml := `rentradar:
  name: "TestApp"
  version: "1.0"
channels:
  raw_buffer: 1
  violation_buffer: 1
processor:
  max_workers: 1
  batch_size: 1
source:
  rentcast:
    base_url: "https://api.example.com/listings/rental/long-term"
    cities: ["Los Angeles"]
reference:
  fmr_file: "testdata/fmr.csv"
`
	path := writeTempConfig(t, yaml)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for missing rules.declaration_date")
	}
}

func TestRuleDateDerivation(t *testing.T) {
	rules := RulesConfig{DeclarationDate: "2025-01-07"}

	if got := rules.DeclarationTime(); !got.Equal(time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("declaration: %v", got)
	}
	if got := rules.BaselineCutoffTime(); !got.Equal(time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("baseline cutoff should default to the day before: %v", got)
	}
	if got := rules.RelistingCutoffTime(); !got.Equal(time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("relisting cutoff should default to one year before: %v", got)
	}

	rules.BaselineCutoffDate = "2025-01-05"
	if got := rules.BaselineCutoffTime(); !got.Equal(time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("explicit baseline cutoff ignored: %v", got)
	}
}

func TestAPIKeyFromEnvironment(t *testing.T) {
	t.Setenv("RENTCAST_API_KEY", "test-key")

	path := writeTempConfig(t, minimalYAML)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Source.RentCast.APIKey != "test-key" {
		t.Errorf("api key not taken from environment: %q", cfg.Source.RentCast.APIKey)
	}
}
