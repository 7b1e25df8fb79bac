package models

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type brandEntry struct {
	canonical string
	// aliases are folded spellings matched on token boundaries.
	aliases []string
	// fragments match anywhere, so "Mercedes-AMG" still folds to Mercedes-Benz.
	fragments []string
}

// vocabulary is ordered: the first entry found in a text wins.
var vocabulary = []brandEntry{
	{canonical: "Toyota", aliases: []string{"toyota"}},
	{canonical: "BMW", aliases: []string{"bmw"}},
	{canonical: "Mercedes-Benz", aliases: []string{"benz"}, fragments: []string{"mercedes"}},
	{canonical: "Skoda", aliases: []string{"skoda"}},
	{canonical: "Volkswagen", aliases: []string{"volkswagen", "vw"}},
	{canonical: "Audi", aliases: []string{"audi"}},
	{canonical: "Volvo", aliases: []string{"volvo"}},
	{canonical: "Honda", aliases: []string{"honda"}},
	{canonical: "Ford", aliases: []string{"ford"}},
	{canonical: "Nissan", aliases: []string{"nissan"}},
	{canonical: "Hyundai", aliases: []string{"hyundai"}},
	{canonical: "Kia", aliases: []string{"kia"}},
	{canonical: "Peugeot", aliases: []string{"peugeot"}},
	{canonical: "Opel", aliases: []string{"opel"}},
	{canonical: "Mazda", aliases: []string{"mazda"}},
	{canonical: "Lexus", aliases: []string{"lexus"}},
	{canonical: "Subaru", aliases: []string{"subaru"}},
	{canonical: "Renault", aliases: []string{"renault"}},
	{canonical: "Citroen", aliases: []string{"citroen"}},
	{canonical: "Mitsubishi", aliases: []string{"mitsubishi"}},
	{canonical: "Tesla", aliases: []string{"tesla"}},
	{canonical: "Porsche", aliases: []string{"porsche"}},
	{canonical: "Land Rover", aliases: []string{"land rover", "land-rover", "landrover"}},
}

// offered is the subset a subscriber can pick in the setup dialog.
var offered = []string{
	"Toyota", "BMW", "Mercedes-Benz", "Audi", "Volkswagen",
	"Skoda", "Volvo", "Honda", "Ford", "Nissan",
	"Hyundai", "Kia", "Peugeot", "Opel", "Mazda",
}

// OfferedBrands returns the brands shown on the setup keyboard.
func OfferedBrands() []string {
	return append([]string(nil), offered...)
}

// MatchBrand returns the canonical brand of the first vocabulary entry
// present in text, or "" when none is.
func MatchBrand(text string) string {
	folded := foldText(text)
	if folded == "" {
		return ""
	}
	for _, e := range vocabulary {
		for _, frag := range e.fragments {
			if strings.Contains(folded, frag) {
				return e.canonical
			}
		}
		for _, alias := range e.aliases {
			if containsToken(folded, alias) {
				return e.canonical
			}
		}
	}
	return ""
}

// NormalizeBrand folds a single brand spelling to its canonical form.
// Unknown names come back trimmed but otherwise untouched.
func NormalizeBrand(raw string) string {
	raw = strings.Join(strings.Fields(raw), " ")
	folded := foldText(raw)
	if folded == "" {
		return ""
	}
	for _, e := range vocabulary {
		if folded == foldText(e.canonical) {
			return e.canonical
		}
		for _, frag := range e.fragments {
			if strings.Contains(folded, frag) {
				return e.canonical
			}
		}
		for _, alias := range e.aliases {
			if folded == alias {
				return e.canonical
			}
		}
	}
	return raw
}

// foldText lower-cases, strips diacritics and collapses whitespace.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.Join(strings.Fields(out), " "))
}

// containsToken reports whether needle occurs in s delimited by
// non-alphanumeric runes (or the string edges).
func containsToken(s, needle string) bool {
	for start := 0; start <= len(s)-len(needle); {
		idx := strings.Index(s[start:], needle)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(needle)
		if boundaryBefore(s, idx) && boundaryAfter(s, end) {
			return true
		}
		start = idx + 1
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r := lastRune(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r := []rune(s[i:])[0]
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func lastRune(s string) rune {
	r := []rune(s)
	return r[len(r)-1]
}
