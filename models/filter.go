package models

import (
	"strconv"
	"strings"
)

const (
	fieldSep = "|"
	rangeSep = "-"
	brandSep = ","
)

// FilterSpec is one subscriber's saved criteria. Nil bounds and an empty
// brand list mean "no constraint".
type FilterSpec struct {
	PriceMin   *int
	PriceMax   *int
	YearMin    *int
	YearMax    *int
	MileageMax *int
	Brands     []string
}

// Encode renders the persisted form "pmin-pmax|ymin-ymax|kmmax|b1,b2".
func (f FilterSpec) Encode() string {
	return strings.Join([]string{
		formatBound(f.PriceMin) + rangeSep + formatBound(f.PriceMax),
		formatBound(f.YearMin) + rangeSep + formatBound(f.YearMax),
		formatBound(f.MileageMax),
		strings.Join(f.Brands, brandSep),
	}, fieldSep)
}

// ParseFilterSpec decodes the persisted form. It never fails: missing or
// unparseable sub-fields are left unconstrained.
func ParseFilterSpec(s string) FilterSpec {
	var f FilterSpec
	parts := strings.Split(s, fieldSep)

	if len(parts) > 0 {
		f.PriceMin, f.PriceMax = parseRange(parts[0])
	}
	if len(parts) > 1 {
		f.YearMin, f.YearMax = parseRange(parts[1])
	}
	if len(parts) > 2 {
		f.MileageMax = parseBound(parts[2])
	}
	if len(parts) > 3 {
		f.Brands = parseBrands(parts[3])
	}
	return f
}

// IsEmpty reports whether the spec constrains nothing.
func (f FilterSpec) IsEmpty() bool {
	return f.PriceMin == nil && f.PriceMax == nil &&
		f.YearMin == nil && f.YearMax == nil &&
		f.MileageMax == nil && len(f.Brands) == 0
}

// Equal compares two specs value by value.
func (f FilterSpec) Equal(o FilterSpec) bool {
	if !eqBound(f.PriceMin, o.PriceMin) || !eqBound(f.PriceMax, o.PriceMax) ||
		!eqBound(f.YearMin, o.YearMin) || !eqBound(f.YearMax, o.YearMax) ||
		!eqBound(f.MileageMax, o.MileageMax) {
		return false
	}
	if len(f.Brands) != len(o.Brands) {
		return false
	}
	for i := range f.Brands {
		if f.Brands[i] != o.Brands[i] {
			return false
		}
	}
	return true
}

// Describe renders a short human summary, one line per dimension.
func (f FilterSpec) Describe() string {
	brands := "any"
	if len(f.Brands) > 0 {
		brands = strings.Join(f.Brands, ", ")
	}
	var b strings.Builder
	b.WriteString("Price: " + describeRange(f.PriceMin, f.PriceMax, GroupThousands, " €") + "\n")
	b.WriteString("Year: " + describeRange(f.YearMin, f.YearMax, strconv.Itoa, "") + "\n")
	if f.MileageMax != nil {
		b.WriteString("Mileage: up to " + GroupThousands(*f.MileageMax) + " km\n")
	} else {
		b.WriteString("Mileage: any\n")
	}
	b.WriteString("Brands: " + brands)
	return b.String()
}

// GroupThousands formats n with a space every three digits: 14990 -> "14 990".
func GroupThousands(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func describeRange(min, max *int, format func(int) string, unit string) string {
	switch {
	case min == nil && max == nil:
		return "any"
	case min == nil:
		return "up to " + format(*max) + unit
	case max == nil:
		return "from " + format(*min) + unit
	default:
		return format(*min) + "–" + format(*max) + unit
	}
}

func formatBound(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func parseRange(s string) (*int, *int) {
	lo, hi, ok := strings.Cut(s, rangeSep)
	if !ok {
		return nil, nil
	}
	return parseBound(lo), parseBound(hi)
}

// parseBound accepts only plain non-negative decimal integers.
func parseBound(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}

func parseBrands(s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, raw := range strings.Split(s, brandSep) {
		b := NormalizeBrand(raw)
		if b == "" {
			continue
		}
		if _, dup := seen[b]; dup {
			continue
		}
		seen[b] = struct{}{}
		out = append(out, b)
	}
	return out
}

func eqBound(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
