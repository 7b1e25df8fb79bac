package scraper

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"car-sniper/models"
	"car-sniper/services"
	"car-sniper/utils"
)

const (
	defaultMaxBatch   = 60
	defaultContainers = "article, li, tr, div"
	// maxClimb is how many ancestors past the nearest container may be
	// searched for fields.
	maxClimb = 2
)

var numericID = regexp.MustCompile(`^\d+$`)

// SiteRules describes where a marketplace puts its listings.
type SiteRules struct {
	// Source prefixes every listing id.
	Source string
	// Origin resolves relative links; its host is always accepted.
	Origin string
	// HostSuffix admits mirrors such as m.auto24.ee or eng.auto24.ee.
	HostSuffix string
	// IDAttrs are element attributes carrying a numeric listing id.
	IDAttrs []string
	// PathMarkers select anchors that point at listings.
	PathMarkers []string
	// QueryIDParams are query parameters holding the id (/x/?id=42).
	QueryIDParams []string
	// PathIDPatterns capture the id from the path (/used/42).
	PathIDPatterns []*regexp.Regexp
	// RejectPaths drop login and session pages.
	RejectPaths []string
	// DetailURL builds a link from an id when a tagged element has no anchor.
	DetailURL string
	// Containers is the selector for a listing's enclosing element.
	Containers string
	MaxBatch   int
}

// Collector turns fetched documents into listing records.
type Collector struct {
	rules     SiteRules
	origin    *url.URL
	extractor *services.Extractor
	logger    *utils.Logger
}

func NewCollector(rules SiteRules, extractor *services.Extractor, logger *utils.Logger) (*Collector, error) {
	origin, err := url.Parse(rules.Origin)
	if err != nil || origin.Host == "" {
		return nil, fmt.Errorf("collector: bad origin %q", rules.Origin)
	}
	if rules.Containers == "" {
		rules.Containers = defaultContainers
	}
	if rules.MaxBatch <= 0 {
		rules.MaxBatch = defaultMaxBatch
	}
	if extractor == nil {
		extractor = services.NewExtractor()
	}
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	return &Collector{rules: rules, origin: origin, extractor: extractor, logger: logger}, nil
}

type candidate struct {
	num       string
	url       string
	title     string
	container *goquery.Selection
}

// Collect scans documents in order and returns at most MaxBatch records,
// first occurrence of each id winning. A document that does not parse is
// logged and skipped.
func (c *Collector) Collect(docs []models.Document) []*models.ListingRecord {
	seen := utils.NewKeySet()
	var out []*models.ListingRecord

	for _, d := range docs {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(d.Body))
		if err != nil {
			c.logger.Warn("[collector] %s: unparseable document: %v", d.URL, err)
			continue
		}

		cands := append(c.taggedCandidates(doc), c.anchorCandidates(doc)...)
		for _, cand := range cands {
			id := c.rules.Source + ":" + cand.num
			if !seen.Add(id) {
				continue
			}
			out = append(out, c.buildRecord(id, cand, d))
			if len(out) >= c.rules.MaxBatch {
				c.logger.Debug("[collector] Batch limit %d reached", c.rules.MaxBatch)
				return out
			}
		}
	}
	c.logger.Debug("[collector] %d documents -> %d listings", len(docs), len(out))
	return out
}

// taggedCandidates finds elements that carry the listing id as an attribute.
func (c *Collector) taggedCandidates(doc *goquery.Document) []candidate {
	if len(c.rules.IDAttrs) == 0 {
		return nil
	}
	selector := make([]string, len(c.rules.IDAttrs))
	for i, a := range c.rules.IDAttrs {
		selector[i] = "[" + a + "]"
	}

	var out []candidate
	doc.Find(strings.Join(selector, ", ")).Each(func(_ int, sel *goquery.Selection) {
		num := c.attrID(sel)
		if num == "" {
			return
		}
		cand := candidate{num: num, container: sel}
		sel.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			u, ok := c.acceptURL(href)
			if !ok {
				return true
			}
			cand.url = u.String()
			cand.title = anchorTitle(a)
			return false
		})
		if cand.url == "" {
			if c.rules.DetailURL == "" {
				return
			}
			cand.url = fmt.Sprintf(c.rules.DetailURL, num)
		}
		out = append(out, cand)
	})
	return out
}

// anchorCandidates finds links whose path follows the listing convention.
func (c *Collector) anchorCandidates(doc *goquery.Document) []candidate {
	var out []candidate
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		u, ok := c.acceptURL(href)
		if !ok || !c.hasPathMarker(u.Path) {
			return
		}
		num := c.urlID(u)
		if num == "" {
			return
		}
		out = append(out, candidate{
			num:       num,
			url:       u.String(),
			title:     anchorTitle(a),
			container: c.nearestContainer(a),
		})
	})
	return out
}

func (c *Collector) buildRecord(id string, cand candidate, d models.Document) *models.ListingRecord {
	fields := c.fieldsFor(cand)

	title := cand.title
	if title == "" {
		title = normaliseSpace(cand.container.Find("h1, h2, h3, h4").First().Text())
	}
	if title == "" {
		title = c.rules.Source + " listing " + cand.num
	}

	return &models.ListingRecord{
		ID:        id,
		Source:    c.rules.Source,
		URL:       cand.url,
		Title:     title,
		Price:     fields.Price,
		Year:      fields.Year,
		MileageKm: fields.MileageKm,
		Brand:     fields.Brand,
		FetchedAt: d.FetchedAt,
	}
}

// fieldsFor extracts from the candidate's container. While no price, year
// or mileage has turned up it climbs to wider containers, but never into one
// that also holds another listing. The nearest brand found is kept.
func (c *Collector) fieldsFor(cand candidate) models.ListingFields {
	container := cand.container
	fields := c.extractor.Extract(nodeText(container))
	if cand.title != "" && fields.Brand == "" {
		fields.Brand = models.MatchBrand(cand.title)
	}

	for i := 0; i < maxClimb && !hasNumbers(fields); i++ {
		wider := container.Parent().Closest(c.rules.Containers)
		if wider.Length() == 0 || !c.onlyListing(wider, cand.num) {
			break
		}
		container = wider
		brand := fields.Brand
		fields = c.extractor.Extract(nodeText(container))
		if brand != "" {
			fields.Brand = brand
		}
	}
	return fields
}

// onlyListing reports whether every listing id found under sel is num.
func (c *Collector) onlyListing(sel *goquery.Selection, num string) bool {
	only := true
	sel.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		u, ok := c.acceptURL(href)
		if !ok || !c.hasPathMarker(u.Path) {
			return true
		}
		if id := c.urlID(u); id != "" && id != num {
			only = false
		}
		return only
	})
	if !only {
		return false
	}
	for _, attr := range c.rules.IDAttrs {
		sel.Find("[" + attr + "]").EachWithBreak(func(_ int, el *goquery.Selection) bool {
			if v, _ := el.Attr(attr); numericID.MatchString(strings.TrimSpace(v)) && strings.TrimSpace(v) != num {
				only = false
			}
			return only
		})
	}
	return only
}

func (c *Collector) nearestContainer(a *goquery.Selection) *goquery.Selection {
	if sel := a.Parent().Closest(c.rules.Containers); sel.Length() > 0 {
		return sel
	}
	return a.Parent()
}

func (c *Collector) attrID(sel *goquery.Selection) string {
	for _, attr := range c.rules.IDAttrs {
		if v, ok := sel.Attr(attr); ok {
			v = strings.TrimSpace(v)
			if numericID.MatchString(v) {
				return v
			}
		}
	}
	return ""
}

// urlID pulls the numeric id from the query first, then from the path.
func (c *Collector) urlID(u *url.URL) string {
	q := u.Query()
	for _, p := range c.rules.QueryIDParams {
		if v := strings.TrimSpace(q.Get(p)); numericID.MatchString(v) {
			return v
		}
	}
	for _, re := range c.rules.PathIDPatterns {
		if m := re.FindStringSubmatch(u.Path); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

// acceptURL resolves href against the origin and keeps it only when it is
// an http(s) link on the site (or a mirror) that is not a login page.
func (c *Collector) acceptURL(href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	u := c.origin.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if !c.allowedHost(u.Hostname()) {
		return nil, false
	}
	lower := strings.ToLower(u.Path)
	for _, p := range c.rules.RejectPaths {
		if strings.Contains(lower, p) {
			return nil, false
		}
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, true
}

func (c *Collector) allowedHost(host string) bool {
	host = strings.ToLower(host)
	if host == strings.ToLower(c.origin.Hostname()) {
		return true
	}
	suffix := strings.ToLower(c.rules.HostSuffix)
	return suffix != "" && (host == suffix || strings.HasSuffix(host, "."+suffix))
}

func (c *Collector) hasPathMarker(path string) bool {
	lower := strings.ToLower(path)
	for _, m := range c.rules.PathMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func anchorTitle(a *goquery.Selection) string {
	if t := normaliseSpace(nodeText(a)); t != "" {
		return t
	}
	if alt, ok := a.Find("img[alt]").Attr("alt"); ok {
		return normaliseSpace(alt)
	}
	if t, ok := a.Attr("title"); ok {
		return normaliseSpace(t)
	}
	return ""
}

// nodeText joins the text nodes under sel with spaces, skipping scripts and
// styles, so adjacent cells ("2015" and "145000 km") stay separate numbers.
func nodeText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}

func normaliseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hasNumbers(f models.ListingFields) bool {
	return f.Price != nil || f.Year != nil || f.MileageKm != nil
}
