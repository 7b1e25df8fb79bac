package models

import "time"

// Document is one raw markup page as fetched from a source.
type Document struct {
	Source    string
	URL       string
	Body      []byte
	FetchedAt time.Time
}

// ListingFields are the scalar values the extractor pulls out of the text
// surrounding a listing. Nil pointers and an empty Brand mean "unknown".
type ListingFields struct {
	Price     *int
	Year      *int
	MileageKm *int
	Brand     string
}

// ListingRecord is one discovered ad. It is built once per scan and never
// mutated afterwards.
type ListingRecord struct {
	ID        string // "<source>:<numeric id>", stable across scans
	Source    string
	URL       string
	Title     string
	Price     *int
	Year      *int
	MileageKm *int
	Brand     string
	FetchedAt time.Time
}

// SubscriberFilter pairs a subscriber with their saved criteria.
type SubscriberFilter struct {
	SubscriberID int64
	Spec         FilterSpec
}

// LedgerMeta is the descriptive data stored next to a ledger key.
type LedgerMeta struct {
	Source string
	URL    string
	Title  string
}

// LedgerEntry records that a subscriber was told about a listing at a price.
type LedgerEntry struct {
	SubscriberID int64
	ListingID    string
	Price        *int
	Meta         LedgerMeta
	NotifiedAt   time.Time
}

// BatchInsights summarises extraction coverage for one collected batch.
type BatchInsights struct {
	Total       int            `json:"total"`
	WithPrice   int            `json:"with_price"`
	WithYear    int            `json:"with_year"`
	WithMileage int            `json:"with_mileage"`
	WithBrand   int            `json:"with_brand"`
	MinPrice    int            `json:"min_price"`
	MaxPrice    int            `json:"max_price"`
	AvgPrice    float64        `json:"avg_price"`
	ByBrand     map[string]int `json:"by_brand"`
	Cheapest    *ListingRecord `json:"-"`
}

// TickReport is the outcome of one orchestrator tick.
type TickReport struct {
	TickID          string         `json:"tick_id"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	Documents       int            `json:"documents"`
	Listings        int            `json:"listings"`
	Subscribers     int            `json:"subscribers"`
	Matches         int            `json:"matches"`
	Sent            int            `json:"sent"`
	AlreadyNotified int            `json:"already_notified"`
	SendFailures    int            `json:"send_failures"`
	LedgerErrors    int            `json:"ledger_errors"`
	Insights        *BatchInsights `json:"insights,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// IntPtr is a small helper for optional integer fields.
func IntPtr(v int) *int { return &v }
