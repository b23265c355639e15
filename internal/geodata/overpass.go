package geodata

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"slices"
	"time"

	"github.com/serjvanilla/go-overpass"
	"golang.org/x/sync/errgroup"

	"github.com/nyashahama/geoanalyzer/internal/geo"
)

const (
	defaultInfraRadius = 1000.0
	maxUrbanRadius     = 800.0  // node queries beyond this are too slow on public mirrors
	industryRadius     = 1200.0 // industrial land use is searched wider
	maxPOIDistance     = 2500   // meters
	defaultWaterRadius = 800.0
	maxWaterDetails    = 5
	waterFlightTimeout = 30 * time.Second // token waits plus every endpoint attempt
)

// ─── TRANSPORT ────────────────────────────────────────────────────────────────

// contextTransport binds every request to ctx. go-overpass has no
// context-aware API, so cancellation and deadlines are injected here.
type contextTransport struct {
	ctx       context.Context
	base      http.RoundTripper
	userAgent string
}

func (t contextTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(t.ctx)
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}

// queryOverpass runs query against the configured endpoints in order.
func (c *Client) queryOverpass(ctx context.Context, query string, timeout time.Duration) (overpass.Result, error) {
	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	wait := func(ctx context.Context, endpoint string) error {
		if err := c.limiter.WaitEndpoint(ctx, ServiceOverpass, endpoint); err != nil {
			return transportError(ServiceOverpass, err)
		}
		return nil
	}

	return firstSuccess(ctx, c.opts.OverpassEndpoints, timeout, wait, func(ctx context.Context, endpoint string) (overpass.Result, error) {
		hc := &http.Client{Transport: contextTransport{ctx: ctx, base: base, userAgent: c.opts.UserAgent}}
		client := overpass.NewWithSettings(endpoint, 1, hc)
		res, err := client.Query(query)
		if err != nil {
			if ctx.Err() != nil {
				return overpass.Result{}, transportError(ServiceOverpass, ctx.Err())
			}
			return overpass.Result{}, &APIError{Service: ServiceOverpass, Err: err}
		}
		return res, nil
	})
}

// ─── ELEMENTS ─────────────────────────────────────────────────────────────────

// element is a tagged node or way flattened to a single point. Ways use the
// centroid of their resolved member nodes, falling back to the bounds centre.
type element struct {
	id     int64
	tags   map[string]string
	lat    float64
	lon    float64
	hasPos bool
}

// elements returns the tagged features of res in id order. Untagged nodes are
// way geometry, not features, and are skipped.
func elements(res overpass.Result) []element {
	out := make([]element, 0, len(res.Nodes)+len(res.Ways))
	for _, n := range res.Nodes {
		if len(n.Tags) == 0 {
			continue
		}
		out = append(out, element{id: n.ID, tags: n.Tags, lat: n.Lat, lon: n.Lon, hasPos: n.Lat != 0 || n.Lon != 0})
	}
	for _, w := range res.Ways {
		if len(w.Tags) == 0 {
			continue
		}
		e := element{id: w.ID, tags: w.Tags}
		var sumLat, sumLon float64
		var n int
		for _, node := range w.Nodes {
			if node == nil || (node.Lat == 0 && node.Lon == 0) {
				continue
			}
			sumLat += node.Lat
			sumLon += node.Lon
			n++
		}
		switch {
		case n > 0:
			e.lat, e.lon, e.hasPos = sumLat/float64(n), sumLon/float64(n), true
		case w.Bounds != nil:
			e.lat = (w.Bounds.Min.Lat + w.Bounds.Max.Lat) / 2
			e.lon = (w.Bounds.Min.Lon + w.Bounds.Max.Lon) / 2
			e.hasPos = true
		}
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b element) int { return cmp.Compare(a.id, b.id) })
	return out
}

// ─── INFRASTRUCTURE ───────────────────────────────────────────────────────────

// QueryInfrastructure counts hospitals, schools, parks, shops and public
// transport within radius meters and labels the area. If every Overpass
// endpoint fails the counts are zero and the result is marked Degraded;
// degraded results are not cached.
func (c *Client) QueryInfrastructure(ctx context.Context, at geo.Coordinates, radius float64) Infrastructure {
	if radius <= 0 {
		radius = defaultInfraRadius
	}
	key := fmt.Sprintf("%s/%.0f", at.Key(), radius)
	if v, ok := c.infra.Get(key); ok {
		return v
	}

	around := fmt.Sprintf("(around:%.0f,%f,%f)", radius, at.Lat, at.Lon)
	query := fmt.Sprintf(`[out:json][timeout:25];
(
  node["amenity"="hospital"]%[1]s;
  way["amenity"="hospital"]%[1]s;
  node["amenity"="school"]%[1]s;
  way["amenity"="school"]%[1]s;
  node["leisure"="park"]%[1]s;
  way["leisure"="park"]%[1]s;
  node["shop"]%[1]s;
  way["shop"]%[1]s;
  node["public_transport"]%[1]s;
  way["public_transport"]%[1]s;
);
out tags;`, around)

	var (
		res     overpass.Result
		qErr    error
		landUse []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, qErr = c.queryOverpass(gctx, query, overpassTimeout)
		return nil
	})
	g.Go(func() error {
		rev, err := c.ReverseGeocodeDetails(gctx, at)
		if err != nil {
			c.degraded(gctx, "land use lookup", err, "coords", at.String())
			landUse = []string{"unknown"}
			return nil
		}
		landUse = LandUse(rev.Address)
		return nil
	})
	_ = g.Wait()

	if qErr != nil {
		c.degraded(ctx, "infrastructure query", qErr, "coords", at.String())
		return Infrastructure{LandUse: landUse, Zoning: "unclassified", Density: "unavailable", Degraded: true}
	}

	var inf Infrastructure
	for _, e := range elements(res) {
		if e.tags["amenity"] == "hospital" {
			inf.Hospitals++
		}
		if e.tags["amenity"] == "school" {
			inf.Schools++
		}
		if e.tags["leisure"] == "park" {
			inf.Parks++
		}
		if e.tags["shop"] != "" {
			inf.Commerce++
		}
		if e.tags["public_transport"] != "" {
			inf.Transport++
		}
	}
	inf.LandUse = landUse
	inf.Zoning = Zoning(inf.Hospitals, inf.Schools, inf.Parks, inf.Commerce)
	inf.Density = Density(inf.Commerce)

	c.infra.Set(key, inf)
	return inf
}

// Zoning labels an area from its amenity counts. Checks run in priority
// order; the first match wins.
func Zoning(hospitals, schools, parks, commerce int) string {
	switch {
	case commerce > 15:
		return "commercial"
	case schools > 5:
		return "educational"
	case hospitals > 2:
		return "health"
	case parks > 5:
		return "green/recreational"
	default:
		return "mixed residential"
	}
}

// Density estimates urban density from the number of shops.
func Density(commerce int) string {
	switch {
	case commerce > 10:
		return "high"
	case commerce > 5:
		return "medium"
	default:
		return "low"
	}
}

// ─── URBAN LAYER ──────────────────────────────────────────────────────────────

var (
	healthRe    = regexp.MustCompile(`hospital|clinic|pharmacy|doctors`)
	educationRe = regexp.MustCompile(`school|university|kindergarten|college`)
	foodFuelRe  = regexp.MustCompile(`cafe|restaurant|bar|fuel`)
)

// urbanCategory selects and caps one POI list.
type urbanCategory struct {
	match func(tags map[string]string) bool
	limit int
	dst   func(*UrbanLayer) *[]POI
}

var urbanCategories = []urbanCategory{
	{func(t map[string]string) bool { return healthRe.MatchString(t["amenity"]) }, 12,
		func(u *UrbanLayer) *[]POI { return &u.Hospitals }},
	{func(t map[string]string) bool { return educationRe.MatchString(t["amenity"]) }, 10,
		func(u *UrbanLayer) *[]POI { return &u.Schools }},
	{func(t map[string]string) bool { return t["amenity"] == "pharmacy" }, 8,
		func(u *UrbanLayer) *[]POI { return &u.Pharmacies }},
	{func(t map[string]string) bool { return t["shop"] != "" || foodFuelRe.MatchString(t["amenity"]) }, 15,
		func(u *UrbanLayer) *[]POI { return &u.Shops }},
	{func(t map[string]string) bool { return t["highway"] == "bus_stop" || t["railway"] != "" }, 10,
		func(u *UrbanLayer) *[]POI { return &u.Transport }},
	{func(t map[string]string) bool { return t["landuse"] == "industrial" }, 8,
		func(u *UrbanLayer) *[]POI { return &u.Industry }},
	{func(t map[string]string) bool { return t["amenity"] == "fuel" || t["landuse"] == "industrial" }, 12,
		func(u *UrbanLayer) *[]POI { return &u.Pollution }},
}

// QueryUrbanLayer lists nearby services and nuisances by category, nearest
// first. Node searches are capped at 800 m; industrial land at 1200 m.
func (c *Client) QueryUrbanLayer(ctx context.Context, at geo.Coordinates, radius float64) UrbanLayer {
	r := math.Min(radius, maxUrbanRadius)
	if r <= 0 {
		r = maxUrbanRadius
	}
	key := fmt.Sprintf("%s/%.0f", at.Key(), r)
	if v, ok := c.urban.Get(key); ok {
		return v
	}

	around := fmt.Sprintf("(around:%.0f,%f,%f)", r, at.Lat, at.Lon)
	industrial := fmt.Sprintf("(around:%.0f,%f,%f)", industryRadius, at.Lat, at.Lon)
	query := fmt.Sprintf(`[out:json][timeout:8];
(
  node["amenity"~"hospital|clinic|doctors|school|university|kindergarten|college|pharmacy|restaurant|cafe|bar|fuel"]%[1]s;
  node["shop"~"supermarket|convenience|bakery|butcher|greengrocer"]%[1]s;
  node["leisure"="park"]%[1]s;
  node["highway"="bus_stop"]%[1]s;
  node["railway"="station"]%[1]s;
  way["landuse"="industrial"]%[2]s;
);
out body;
>;
out skel qt;`, around, industrial)

	res, err := c.queryOverpass(ctx, query, urbanTimeout)
	if err != nil {
		c.degraded(ctx, "urban layer query", err, "coords", at.String())
		return emptyUrbanLayer(true)
	}

	layer := buildUrbanLayer(at, elements(res))
	c.urban.Set(key, layer)
	return layer
}

func emptyUrbanLayer(degraded bool) UrbanLayer {
	return UrbanLayer{
		Hospitals: []POI{}, Schools: []POI{}, Pharmacies: []POI{}, Shops: []POI{},
		Transport: []POI{}, Industry: []POI{}, Pollution: []POI{},
		Degraded: degraded,
	}
}

func buildUrbanLayer(at geo.Coordinates, els []element) UrbanLayer {
	layer := emptyUrbanLayer(false)
	for _, cat := range urbanCategories {
		var pois []POI
		for _, e := range els {
			if !e.hasPos || !cat.match(e.tags) {
				continue
			}
			p := toPOI(at, e)
			if p.DistanceM > maxPOIDistance {
				continue
			}
			pois = append(pois, p)
		}
		slices.SortStableFunc(pois, func(a, b POI) int { return cmp.Compare(a.DistanceM, b.DistanceM) })
		if len(pois) > cat.limit {
			pois = pois[:cat.limit]
		}
		if pois != nil {
			*cat.dst(&layer) = pois
		}
	}
	return layer
}

func toPOI(at geo.Coordinates, e element) POI {
	typ := firstTag(e.tags, "amenity", "shop", "leisure", "man_made", "natural", "building", "highway", "railway", "landuse", "power")
	if typ == "" {
		typ = "point of interest"
	}
	name := firstTag(e.tags, "name", "brand", "operator", "description")
	if name == "" {
		name = "[" + typ + "]"
	}
	return POI{
		Name:      name,
		Type:      typ,
		DistanceM: int(math.Round(geo.Distance(at, geo.Coordinates{Lat: e.lat, Lon: e.lon}))),
		Lat:       e.lat,
		Lon:       e.lon,
	}
}

func firstTag(tags map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := tags[k]; v != "" {
			return v
		}
	}
	return ""
}

// ─── WATER ────────────────────────────────────────────────────────────────────

// CountWaterFeatures counts river and stream nodes within radius meters.
// Results are memoised per point and radius, and concurrent calls for the
// same point share one request. On failure the result is marked Degraded and
// is not cached.
func (c *Client) CountWaterFeatures(ctx context.Context, at geo.Coordinates, radius float64) WaterFeatures {
	if radius <= 0 {
		radius = defaultWaterRadius
	}
	key := fmt.Sprintf("%s/%.0f", at.Key(), radius)
	if v, ok := c.water.Get(key); ok {
		return v
	}

	// The shared request outlives any single caller, so a superseded analysis
	// does not degrade the one that replaced it. Callers stop waiting when
	// their own ctx ends.
	ch := c.waterFlight.DoChan(key, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), waterFlightTimeout)
		defer cancel()
		w := c.queryWater(fctx, at, radius)
		if !w.Degraded {
			c.water.Set(key, w)
		}
		return w, nil
	})
	select {
	case r := <-ch:
		return r.Val.(WaterFeatures)
	case <-ctx.Done():
		c.degraded(ctx, "water features query", ctx.Err(), "coords", at.String())
		return WaterFeatures{Details: []string{}, Degraded: true}
	}
}

func (c *Client) queryWater(ctx context.Context, at geo.Coordinates, radius float64) WaterFeatures {
	query := fmt.Sprintf(`[out:json][timeout:6];
node["waterway"~"river|stream"](around:%.0f,%f,%f);
out;`, radius, at.Lat, at.Lon)

	res, err := c.queryOverpass(ctx, query, waterTimeout)
	if err != nil {
		c.degraded(ctx, "water features query", err, "coords", at.String())
		return WaterFeatures{Details: []string{}, Degraded: true}
	}

	// Every feature counts; only positioned ones can be placed in the
	// distance-sorted details.
	els := elements(res)
	pois := make([]POI, 0, len(els))
	for _, e := range els {
		if !e.hasPos {
			continue
		}
		p := POI{Name: e.tags["name"], Type: e.tags["waterway"]}
		if p.Name == "" {
			p.Name = "unnamed watercourse"
		}
		if p.Type == "" {
			p.Type = "water"
		}
		p.DistanceM = int(math.Round(geo.Distance(at, geo.Coordinates{Lat: e.lat, Lon: e.lon})))
		pois = append(pois, p)
	}
	slices.SortStableFunc(pois, func(a, b POI) int { return cmp.Compare(a.DistanceM, b.DistanceM) })

	details := make([]string, 0, maxWaterDetails)
	for i, p := range pois {
		if i == maxWaterDetails {
			break
		}
		details = append(details, fmt.Sprintf("%s (%s, %d m)", p.Name, p.Type, p.DistanceM))
	}
	return WaterFeatures{Count: len(els), Details: details}
}
