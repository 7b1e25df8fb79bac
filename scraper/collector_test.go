package scraper

import (
	"regexp"
	"testing"
	"time"

	"car-sniper/models"
	"car-sniper/services"
	"car-sniper/utils"
)

func testRules() SiteRules {
	return SiteRules{
		Source:         "site",
		Origin:         "https://www.example.ee",
		HostSuffix:     "example.ee",
		IDAttrs:        []string{"data-id", "data-ad-id"},
		PathMarkers:    []string{"/cars/"},
		QueryIDParams:  []string{"id"},
		PathIDPatterns: []*regexp.Regexp{regexp.MustCompile(`/cars/(\d+)(?:/|$)`)},
		RejectPaths:    []string{"/login"},
		DetailURL:      "https://www.example.ee/cars/%s",
	}
}

func newTestCollector(t *testing.T, rules SiteRules) *Collector {
	t.Helper()
	clock := func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	c, err := NewCollector(rules, services.NewExtractorAt(clock), utils.NewDiscardLogger())
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	return c
}

func doc(body string) models.Document {
	return models.Document{Source: "site", URL: "https://www.example.ee/search", Body: []byte(body)}
}

const listPage = `<html><body>
<ul>
  <li><a href="/cars/?id=1">Audi A4 Avant</a> <span>2012</span><span>210 000 km</span> <b>7 900 €</b></li>
  <li><a href="https://m.example.ee/cars/2#photos">VW Golf</a> 2016 99000 km 11 500 €</li>
  <li><a href="/cars/1">Audi A4 Avant again</a></li>
  <li><a href="/login?next=/cars/3">Log in</a></li>
  <li><a href="https://evil.test/cars/4">Foreign</a></li>
  <li><a href="javascript:void(0)">Nothing</a></li>
  <li><a href="/cars/kasutatud/">All cars</a></li>
</ul>
</body></html>`

func TestCollectorAnchors(t *testing.T) {
	c := newTestCollector(t, testRules())
	recs := c.Collect([]models.Document{doc(listPage)})

	if len(recs) != 2 {
		t.Fatalf("expected 2 listings, got %d: %+v", len(recs), recs)
	}

	a := recs[0]
	if a.ID != "site:1" || a.URL != "https://www.example.ee/cars/?id=1" || a.Title != "Audi A4 Avant" {
		t.Errorf("first record: %+v", a)
	}
	if a.Brand != "Audi" || *a.Year != 2012 || *a.MileageKm != 210000 || *a.Price != 7900 {
		t.Errorf("first record fields: brand=%q year=%v km=%v price=%v", a.Brand, *a.Year, *a.MileageKm, *a.Price)
	}

	b := recs[1]
	if b.ID != "site:2" || b.URL != "https://m.example.ee/cars/2" {
		t.Errorf("mirror record: %+v", b)
	}
	if b.Brand != "Volkswagen" {
		t.Errorf("mirror brand: got %q", b.Brand)
	}
}

func TestCollectorIsIdempotent(t *testing.T) {
	c := newTestCollector(t, testRules())
	first := c.Collect([]models.Document{doc(listPage), doc(listPage)})
	second := c.Collect([]models.Document{doc(listPage)})

	if len(first) != len(second) {
		t.Fatalf("got %d then %d records", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("record %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestCollectorTaggedElements(t *testing.T) {
	page := `<div class="results">
	  <div class="row" data-id="77"><h3>Skoda Octavia</h3> 2018 · 150 000 km · 9 999 €</div>
	  <div class="row" data-ad-id="78"><a href="/cars/78">Kia Ceed</a> 2019 8 000 €</div>
	  <div class="row" data-id="not-a-number">ignored</div>
	</div>`
	c := newTestCollector(t, testRules())
	recs := c.Collect([]models.Document{doc(page)})

	if len(recs) != 2 {
		t.Fatalf("expected 2 listings, got %d", len(recs))
	}
	if recs[0].ID != "site:77" || recs[0].URL != "https://www.example.ee/cars/77" || recs[0].Title != "Skoda Octavia" {
		t.Errorf("tagged without anchor: %+v", recs[0])
	}
	if recs[0].Brand != "Skoda" || *recs[0].Price != 9999 {
		t.Errorf("tagged fields: %+v", recs[0])
	}
	if recs[1].ID != "site:78" || recs[1].URL != "https://www.example.ee/cars/78" {
		t.Errorf("tagged with anchor: %+v", recs[1])
	}
}

func TestCollectorClimbsOnlyIntoOwnContainer(t *testing.T) {
	page := `<article>
	  <div class="card"><div><a href="/cars/5">Photo</a></div></div>
	  <div class="meta">Toyota Yaris 2014 5 500 €</div>
	</article>
	<section>
	  <div class="pair">
	    <div><a href="/cars/6">Photo</a></div>
	    <div><a href="/cars/7">BMW 320d 2010 6 000 €</a></div>
	  </div>
	</section>`
	c := newTestCollector(t, testRules())
	recs := c.Collect([]models.Document{doc(page)})

	byID := map[string]*models.ListingRecord{}
	for _, r := range recs {
		byID[r.ID] = r
	}
	if r := byID["site:5"]; r == nil || r.Brand != "Toyota" || r.Price == nil || *r.Price != 5500 {
		t.Errorf("site:5 should climb to its article: %+v", r)
	}
	if r := byID["site:6"]; r == nil || r.Brand != "" || r.Price != nil {
		t.Errorf("site:6 must not borrow fields from site:7: %+v", r)
	}
	if r := byID["site:7"]; r == nil || r.Brand != "BMW" {
		t.Errorf("site:7: %+v", r)
	}
}

func TestCollectorClimbsPastBrandOnlyTitle(t *testing.T) {
	page := `<table>
	  <tr>
	    <td><div class="title"><a href="/cars/8">Opel Astra</a></div></td>
	    <td>2011</td><td>180 000 km</td><td>3 900 €</td>
	  </tr>
	  <tr>
	    <td><div class="title"><a href="/cars/9">Mazda 6</a></div></td>
	    <td>Ford parts included</td><td>2009</td><td>4 200 €</td>
	  </tr>
	</table>`
	c := newTestCollector(t, testRules())
	recs := c.Collect([]models.Document{doc(page)})

	byID := map[string]*models.ListingRecord{}
	for _, r := range recs {
		byID[r.ID] = r
	}
	r := byID["site:8"]
	if r == nil || r.Brand != "Opel" || r.Year == nil || *r.Year != 2011 ||
		r.MileageKm == nil || *r.MileageKm != 180000 || r.Price == nil || *r.Price != 3900 {
		t.Errorf("site:8 should take its row's cells: %+v", r)
	}
	if r := byID["site:9"]; r == nil || r.Brand != "Mazda" || r.Price == nil || *r.Price != 4200 {
		t.Errorf("site:9 should keep the title brand: %+v", r)
	}
}

func TestCollectorMaxBatch(t *testing.T) {
	rules := testRules()
	rules.MaxBatch = 1
	c := newTestCollector(t, rules)
	recs := c.Collect([]models.Document{doc(listPage)})
	if len(recs) != 1 || recs[0].ID != "site:1" {
		t.Errorf("expected only site:1, got %+v", recs)
	}
}

func TestCollectorEmptyInput(t *testing.T) {
	c := newTestCollector(t, testRules())
	if recs := c.Collect(nil); len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
	if recs := c.Collect([]models.Document{doc("not html at all")}); len(recs) != 0 {
		t.Errorf("expected no records from junk, got %d", len(recs))
	}
}

func TestNodeTextSkipsScripts(t *testing.T) {
	c := newTestCollector(t, testRules())
	recs := c.Collect([]models.Document{doc(`<li><a href="/cars/9">Opel</a><script>var price = "150 €";</script><span>2011</span><span>4 000 €</span></li>`)})
	if len(recs) != 1 || recs[0].Price == nil || *recs[0].Price != 4000 {
		t.Errorf("unexpected record: %+v", recs)
	}
}

func TestNewCollectorRejectsBadOrigin(t *testing.T) {
	rules := testRules()
	rules.Origin = "not a url"
	if _, err := NewCollector(rules, nil, nil); err == nil {
		t.Error("expected an error for an origin without host")
	}
}
