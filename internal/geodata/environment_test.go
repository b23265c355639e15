package geodata_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nyashahama/geoanalyzer/internal/geodata"
)

func TestQueryElevation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("locations"); got != "40.416800,-3.703800" {
			t.Errorf("locations = %q", got)
		}
		fmt.Fprint(w, `{"results":[{"latitude":40.4168,"longitude":-3.7038,"elevation":657}]}`)
	}))
	defer srv.Close()

	if got := newClient(t, srv, geodata.Options{}).QueryElevation(context.Background(), madrid); got != 657 {
		t.Errorf("elevation = %v, want 657", got)
	}
}

func TestQueryElevation_FailureIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if got := newClient(t, srv, geodata.Options{}).QueryElevation(context.Background(), madrid); got != 0 {
		t.Errorf("elevation = %v, want 0", got)
	}
}

func TestQueryRecentPrecipitation_SumsDailyValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("past_days") != "30" || q.Get("daily") != "precipitation_sum" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"daily":{"time":["a","b","c","d"],"precipitation_sum":[1.2,null,3.4,0]}}`)
	}))
	defer srv.Close()

	if got := newClient(t, srv, geodata.Options{}).QueryRecentPrecipitation(context.Background(), madrid); got != 4.6 {
		t.Errorf("precipitation = %v, want 4.6", got)
	}
}

func TestQueryRecentPrecipitation_FailureIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	}))
	defer srv.Close()

	if got := newClient(t, srv, geodata.Options{}).QueryRecentPrecipitation(context.Background(), madrid); got != 0 {
		t.Errorf("precipitation = %v, want 0", got)
	}
}

func TestQueryAirQuality(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k" {
			t.Error("expected the API key header")
		}
		fmt.Fprint(w, `{"results":[
			{"location":"Station A","city":"","measurements":[{"parameter":"no2","value":30,"unit":"µg/m³"}]},
			{"location":"Plaza Castilla","city":"Madrid","measurements":[{"parameter":"pm25","value":20.5,"unit":"µg/m³"}]}
		]}`)
	}))
	defer srv.Close()

	aq := newClient(t, srv, geodata.Options{AirQualityKey: "k"}).QueryAirQuality(context.Background(), madrid)
	if aq.AQI == nil {
		t.Fatal("expected an AQI")
	}
	if *aq.AQI != 69 {
		t.Errorf("AQI = %d, want 69", *aq.AQI)
	}
	if aq.Level != geodata.AQGood {
		t.Errorf("level = %s, want good", aq.Level)
	}
	if aq.Source != "measurement from Madrid - OpenAQ" {
		t.Errorf("source = %q", aq.Source)
	}
}

func TestQueryAirQuality_NoStations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"results":[]}`)
	}))
	defer srv.Close()

	aq := newClient(t, srv, geodata.Options{}).QueryAirQuality(context.Background(), madrid)
	if aq.Level != geodata.AQUnknown || aq.AQI != nil {
		t.Errorf("expected unknown level, got %+v", aq)
	}
}

func TestPM25ToAQI(t *testing.T) {
	tests := []struct {
		pm   float64
		want int
	}{
		{0, 0},
		{12.0, 50},
		{12.1, 51},
		{35.4, 100},
		{55.4, 150},
		{150.4, 200},
		{600, 500},
	}
	for _, tt := range tests {
		if got := geodata.PM25ToAQI(tt.pm); got != tt.want {
			t.Errorf("PM25ToAQI(%v) = %d, want %d", tt.pm, got, tt.want)
		}
	}
}

func TestAQILevel(t *testing.T) {
	tests := []struct {
		aqi  int
		want geodata.AQLevel
	}{
		{0, geodata.AQExcellent},
		{50, geodata.AQExcellent},
		{51, geodata.AQGood},
		{100, geodata.AQGood},
		{150, geodata.AQModerate},
		{200, geodata.AQPoor},
		{201, geodata.AQCritical},
	}
	for _, tt := range tests {
		if got := geodata.AQILevel(tt.aqi); got != tt.want {
			t.Errorf("AQILevel(%d) = %s, want %s", tt.aqi, got, tt.want)
		}
	}
}

func TestZoningAndDensity(t *testing.T) {
	zoning := []struct {
		h, s, p, c int
		want       string
	}{
		{0, 0, 0, 16, "commercial"},
		{3, 6, 0, 16, "commercial"},
		{3, 6, 0, 15, "educational"},
		{3, 5, 9, 0, "health"},
		{2, 5, 6, 0, "green/recreational"},
		{0, 0, 0, 0, "mixed residential"},
	}
	for _, tt := range zoning {
		if got := geodata.Zoning(tt.h, tt.s, tt.p, tt.c); got != tt.want {
			t.Errorf("Zoning(%d,%d,%d,%d) = %q, want %q", tt.h, tt.s, tt.p, tt.c, got, tt.want)
		}
	}

	for commerce, want := range map[int]string{0: "low", 5: "low", 6: "medium", 10: "medium", 11: "high"} {
		if got := geodata.Density(commerce); got != want {
			t.Errorf("Density(%d) = %q, want %q", commerce, got, want)
		}
	}
}

func TestLandUse(t *testing.T) {
	if got := geodata.LandUse(nil); len(got) != 1 || got[0] != "mixed" {
		t.Errorf("LandUse(nil) = %v", got)
	}
	got := geodata.LandUse(map[string]string{"industrial": "Polígono Sur", "road": "x"})
	if len(got) != 1 || got[0] != "industrial" {
		t.Errorf("LandUse = %v", got)
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := geodata.NewCache[string, int](2)
	if err != nil {
		t.Fatal(err)
	}
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a is now most recent
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Error("a should have survived")
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}
