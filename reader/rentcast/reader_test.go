package rentcast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appconfig "github.com/ehutt/rent-radar/config"
	"github.com/ehutt/rent-radar/internal/channel"
)

// minimalConfig returns a minimal configuration required for testing.
func minimalConfig(baseURL string) *appconfig.Config {
	return &appconfig.Config{
		Reader: appconfig.ReaderConfig{
			Timeout:   time.Second,
			RateLimit: appconfig.RateLimitConfig{RequestsPerSecond: 100, BurstSize: 10},
		},
		Source: appconfig.SourceConfig{
			RentCast: appconfig.RentCastSourceConfig{
				BaseURL:        baseURL,
				State:          "CA",
				Status:         "Active",
				Cities:         []string{"Los Angeles"},
				PageLimit:      2,
				MaxPages:       10,
				APIKey:         "test-key",
				ConnectionPool: appconfig.ConnectionPoolConfig{MaxIdleConns: 1, MaxConnsPerHost: 1, IdleConnTimeout: time.Second},
			},
		},
	}
}

func listingPage(ids ...string) string {
	page := "["
	for i, id := range ids {
		if i > 0 {
			page += ","
		}
		page += fmt.Sprintf(`{"id":%q,"zipCode":"90001"}`, id)
	}
	return page + "]"
}

func TestReaderPagesUntilShortPage(t *testing.T) {
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Api-Key"); got != "test-key" {
			t.Errorf("expected api key header, got %q", got)
		}
		offset := r.URL.Query().Get("offset")
		requests = append(requests, offset)
		w.Header().Set("Content-Type", "application/json")
		switch offset {
		case "0":
			fmt.Fprint(w, listingPage("a", "b"))
		case "2":
			fmt.Fprint(w, listingPage("c"))
		default:
			t.Errorf("unexpected offset %s", offset)
			fmt.Fprint(w, "[]")
		}
	}))
	defer server.Close()

	cfg := minimalConfig(server.URL)
	ch := channel.NewChannels(16, 16, 16)

	r := NewReader(cfg, ch)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.Wait()

	if len(requests) != 2 {
		t.Fatalf("expected 2 page fetches, got %d (%v)", len(requests), requests)
	}

	ch.CloseRaw()
	var got []string
	for msg := range ch.Raw {
		if msg.City != "Los Angeles" || msg.State != "CA" {
			t.Errorf("unexpected message origin: city=%s state=%s", msg.City, msg.State)
		}
		var listing struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(msg.Data, &listing); err != nil {
			t.Fatalf("payload not valid json: %v", err)
		}
		got = append(got, listing.ID)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d listings, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("listing %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestReaderStopsAtPageCap(t *testing.T) {
	var pages int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, listingPage("x", "y"))
	}))
	defer server.Close()

	cfg := minimalConfig(server.URL)
	cfg.Source.RentCast.MaxPages = 3
	ch := channel.NewChannels(64, 16, 16)

	r := NewReader(cfg, ch)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.Wait()

	if pages != 3 {
		t.Errorf("expected crawl to stop after 3 pages, got %d", pages)
	}
}

func TestReaderAbandonsCityOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := minimalConfig(server.URL)
	ch := channel.NewChannels(16, 16, 16)

	r := NewReader(cfg, ch)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.Wait()

	ch.CloseRaw()
	count := 0
	for range ch.Raw {
		count++
	}
	if count != 0 {
		t.Errorf("expected no listings from failed city, got %d", count)
	}
}

func TestReaderRequiresCities(t *testing.T) {
	cfg := minimalConfig("http://127.0.0.1:0")
	cfg.Source.RentCast.MaxPages = 0
	cfg.Source.RentCast.Cities = nil
	ch := channel.NewChannels(1, 1, 1)

	r := NewReader(cfg, ch)
	if err := r.Start(context.Background()); err == nil {
		t.Error("expected error when no cities configured")
	}
}
