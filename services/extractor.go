package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"car-sniper/models"
)

const (
	minPrice   = 100
	maxPrice   = 1_000_000
	maxMileage = 1_000_000
	minYear    = 1990
)

// numberToken is a whole number, optionally grouped in threes by spaces.
// Text is whitespace-normalised before matching, so NBSP and thin spaces
// have already become plain spaces.
const numberToken = `\b(\d{1,3}(?: \d{3})+|\d+)`

var (
	priceRegexp   = regexp.MustCompile(numberToken + ` ?(?:€|(?i:eur)\b)`)
	mileageRegexp = regexp.MustCompile(numberToken + ` ?(?i:km)\b`)
	yearRegexp    = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	// unitSuffix marks a number that is a price or a distance, not a year.
	unitSuffix = regexp.MustCompile(`^ ?(?:€|(?i:eur)\b|(?i:km)\b)`)
)

// Extractor pulls price, year, mileage and brand out of the loose text
// around a listing. Every field is best-effort; nothing here fails.
type Extractor struct {
	now func() time.Time
}

// NewExtractor returns an Extractor using the wall clock for the year band.
func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// NewExtractorAt pins the clock, which moves the upper edge of the year band.
func NewExtractorAt(now func() time.Time) *Extractor {
	return &Extractor{now: now}
}

// Extract runs all four field scans over text.
func (e *Extractor) Extract(text string) models.ListingFields {
	text = normaliseText(text)
	return models.ListingFields{
		Price:     e.price(text),
		Year:      e.year(text),
		MileageKm: e.mileage(text),
		Brand:     models.MatchBrand(text),
	}
}

// price takes the lowest plausible amount followed by a euro marker.
// Neighbouring numbers are usually monthly payments or financing totals
// and tend to be larger.
func (e *Extractor) price(text string) *int {
	var best *int
	for _, m := range priceRegexp.FindAllStringSubmatch(text, -1) {
		v, ok := parseGrouped(m[1], minPrice, maxPrice)
		if !ok {
			continue
		}
		if best == nil || v < *best {
			best = models.IntPtr(v)
		}
	}
	return best
}

func (e *Extractor) mileage(text string) *int {
	var best *int
	for _, m := range mileageRegexp.FindAllStringSubmatch(text, -1) {
		v, ok := parseGrouped(m[1], 0, maxMileage)
		if !ok {
			continue
		}
		if best == nil || v < *best {
			best = models.IntPtr(v)
		}
	}
	return best
}

// year returns the first model year in document order.
func (e *Extractor) year(text string) *int {
	upper := e.now().Year() + 1
	for _, loc := range yearRegexp.FindAllStringIndex(text, -1) {
		if unitSuffix.MatchString(text[loc[1]:]) {
			continue
		}
		v, err := strconv.Atoi(text[loc[0]:loc[1]])
		if err != nil || v < minYear || v > upper {
			continue
		}
		return models.IntPtr(v)
	}
	return nil
}

// parseGrouped parses a space-grouped number and rejects it outside [lo, hi].
func parseGrouped(token string, lo, hi int) (int, bool) {
	v, err := strconv.Atoi(strings.ReplaceAll(token, " ", ""))
	if err != nil || v < lo || v > hi {
		return 0, false
	}
	return v, true
}

// normaliseText strips leading/trailing whitespace and collapses internal
// whitespace, including non-breaking and thin spaces, to single spaces.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '\u200b'
	})
	return strings.Join(fields, " ")
}
