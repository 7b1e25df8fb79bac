package services

import "car-sniper/models"

// Matches reports whether rec satisfies spec.
//
// Price, year and mileage are permissive: an unknown value never excludes
// a record, only a known value outside a stated bound does. Brand is strict
// once the subscriber picked any brands.
func Matches(rec *models.ListingRecord, spec models.FilterSpec) bool {
	if rec == nil {
		return false
	}
	if !withinRange(rec.Price, spec.PriceMin, spec.PriceMax) {
		return false
	}
	if !withinRange(rec.Year, spec.YearMin, spec.YearMax) {
		return false
	}
	if !withinRange(rec.MileageKm, nil, spec.MileageMax) {
		return false
	}
	if len(spec.Brands) == 0 {
		return true
	}
	if rec.Brand == "" {
		return false
	}
	for _, b := range spec.Brands {
		if b == rec.Brand {
			return true
		}
	}
	return false
}

// withinRange checks v against inclusive, independently optional bounds.
func withinRange(v, min, max *int) bool {
	if v == nil {
		return true
	}
	if min != nil && *v < *min {
		return false
	}
	if max != nil && *v > *max {
		return false
	}
	return true
}
