// internal/cache/cache_test.go
package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/pagebound/scrape/pkg/models"
)

func result(url string) *models.ScrapeResult {
	v := "value"
	return &models.ScrapeResult{
		Fields:    models.Fields{{Name: "title", Single: &v}},
		FinalURL:  url,
		FetchedAt: time.Now(),
	}
}

func TestMemoryCache_SetAndGet(t *testing.T) {
	mc := NewMemoryCache(10, time.Minute)
	defer mc.Close()

	if err := mc.Set("k1", result("https://example.com")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, hit := mc.Get("k1", time.Minute)
	if !hit {
		t.Fatal("Expected cache hit")
	}
	if got.FinalURL != "https://example.com" {
		t.Errorf("Unexpected result: %+v", got)
	}

	if _, hit := mc.Get("missing", time.Minute); hit {
		t.Error("Expected miss for unknown key")
	}
}

func TestMemoryCache_MaxAgeRejectsStaleEntry(t *testing.T) {
	mc := NewMemoryCache(10, time.Minute)
	defer mc.Close()

	mc.Set("k1", result("https://example.com"))
	time.Sleep(10 * time.Millisecond)

	if _, hit := mc.Get("k1", time.Millisecond); hit {
		t.Error("Entry older than maxAge was served")
	}
	if _, hit := mc.Get("k1", time.Minute); !hit {
		t.Error("Entry within maxAge was not served")
	}
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	mc := NewMemoryCache(3, time.Minute)
	defer mc.Close()

	for i := 0; i < 3; i++ {
		mc.Set(fmt.Sprintf("k%d", i), result("u"))
	}

	// Touch k0 so k1 becomes the eviction candidate.
	mc.Get("k0", time.Minute)
	mc.Set("k3", result("u"))

	if _, hit := mc.Get("k1", time.Minute); hit {
		t.Error("LRU entry survived eviction")
	}
	for _, k := range []string{"k0", "k2", "k3"} {
		if _, hit := mc.Get(k, time.Minute); !hit {
			t.Errorf("Entry %s was wrongly evicted", k)
		}
	}
}

func TestMemoryCache_Stats(t *testing.T) {
	mc := NewMemoryCache(10, time.Minute)
	defer mc.Close()

	mc.Set("k1", result("u"))
	mc.Get("k1", time.Minute)
	mc.Get("nope", time.Minute)

	entries, hits, misses := mc.Stats()
	if entries != 1 || hits != 1 || misses != 1 {
		t.Errorf("Stats = (%d, %d, %d), want (1, 1, 1)", entries, hits, misses)
	}
}

func TestKey_SensitiveToRequestShape(t *testing.T) {
	base := &models.ScrapeRequest{
		URL:   "https://example.com",
		Rules: []models.ExtractionRule{{Field: "title", Selector: "h1"}},
	}

	same := &models.ScrapeRequest{
		URL:   "https://example.com",
		Rules: []models.ExtractionRule{{Field: "title", Selector: "h1"}},
	}
	if Key(base) != Key(same) {
		t.Error("Identical requests produced different keys")
	}

	variants := []*models.ScrapeRequest{
		{URL: "https://example.org", Rules: base.Rules},
		{URL: base.URL, Rules: []models.ExtractionRule{{Field: "title", Selector: "h2"}}},
		{URL: base.URL, Rules: base.Rules, SessionName: "github"},
		{URL: base.URL, Rules: base.Rules, Steps: []models.NavigationStep{{Type: models.StepScroll}}},
	}
	for i, v := range variants {
		if Key(v) == Key(base) {
			t.Errorf("Variant %d produced the same key as the base request", i)
		}
	}
}
