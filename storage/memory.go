package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"car-sniper/models"
)

type ledgerKey struct {
	subscriberID int64
	listingID    string
	known        bool
	price        int
}

func newLedgerKey(subscriberID int64, listingID string, price *int) ledgerKey {
	k := ledgerKey{subscriberID: subscriberID, listingID: listingID}
	if price != nil {
		k.known = true
		k.price = *price
	}
	return k
}

// MemoryStore keeps filters and the ledger in process memory. It does not
// survive restarts and is meant for tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	filters map[int64]string
	ledger  map[ledgerKey]models.LedgerEntry
	order   []ledgerKey
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		filters: make(map[int64]string),
		ledger:  make(map[ledgerKey]models.LedgerEntry),
		now:     time.Now,
	}
}

// SaveFilterSpec stores the encoded spec, the same text the Postgres
// backend persists.
func (m *MemoryStore) SaveFilterSpec(_ context.Context, subscriberID int64, spec models.FilterSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters[subscriberID] = spec.Encode()
	return nil
}

func (m *MemoryStore) LoadFilterSpec(_ context.Context, subscriberID int64) (models.FilterSpec, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.filters[subscriberID]
	if !ok {
		return models.FilterSpec{}, false, nil
	}
	return models.ParseFilterSpec(raw), true, nil
}

// AllFilterSpecs returns every saved spec ordered by subscriber id.
func (m *MemoryStore) AllFilterSpecs(_ context.Context) ([]models.SubscriberFilter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SubscriberFilter, 0, len(m.filters))
	for id, raw := range m.filters {
		out = append(out, models.SubscriberFilter{SubscriberID: id, Spec: models.ParseFilterSpec(raw)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscriberID < out[j].SubscriberID })
	return out, nil
}

func (m *MemoryStore) AlreadyNotified(_ context.Context, subscriberID int64, listingID string, price *int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ledger[newLedgerKey(subscriberID, listingID, price)]
	return ok, nil
}

func (m *MemoryStore) RecordNotified(_ context.Context, subscriberID int64, listingID string, price *int, meta models.LedgerMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := newLedgerKey(subscriberID, listingID, price)
	if _, exists := m.ledger[k]; exists {
		return nil
	}
	entry := models.LedgerEntry{
		SubscriberID: subscriberID,
		ListingID:    listingID,
		Meta:         meta,
		NotifiedAt:   m.now(),
	}
	if price != nil {
		entry.Price = models.IntPtr(*price)
	}
	m.ledger[k] = entry
	m.order = append(m.order, k)
	return nil
}

// Entries returns the ledger in insertion order.
func (m *MemoryStore) Entries() []models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.LedgerEntry, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.ledger[k])
	}
	return out
}

func (m *MemoryStore) LedgerEntries(_ context.Context, subscriberID int64, limit int) ([]models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LedgerEntry
	for i := len(m.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if e := m.ledger[m.order[i]]; e.SubscriberID == subscriberID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
