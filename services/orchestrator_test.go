package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"car-sniper/models"
	"car-sniper/storage"
	"car-sniper/utils"
)

type fakeSource struct {
	mu      sync.Mutex
	records []*models.ListingRecord
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(context.Context) []models.Document {
	return []models.Document{{Source: "fake", URL: "https://example.test/"}}
}

func (f *fakeSource) Collect([]models.Document) []*models.ListingRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records
}

func (f *fakeSource) set(records ...*models.ListingRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
}

type sentMessage struct {
	subscriberID int64
	listingID    string
}

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[int64]bool
}

func (f *fakeNotifier) Notify(_ context.Context, subscriberID int64, rec *models.ListingRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[subscriberID] {
		return errors.New("blocked by user")
	}
	f.sent = append(f.sent, sentMessage{subscriberID, rec.ID})
	return nil
}

type failingFilters struct {
	*storage.MemoryStore
}

func (failingFilters) AllFilterSpecs(context.Context) ([]models.SubscriberFilter, error) {
	return nil, errors.New("connection refused")
}

func newTestOrchestrator(src Source, store TickStore, n Notifier) *Orchestrator {
	return NewOrchestrator(OrchestratorOptions{
		Sources:  []Source{src},
		Store:    store,
		Notifier: n,
		Logger:   utils.NewDiscardLogger(),
	})
}

func listing(id string, brand string, price int) *models.ListingRecord {
	return &models.ListingRecord{ID: id, Source: "auto24", Brand: brand, Price: models.IntPtr(price)}
}

func TestOrchestratorEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.SaveFilterSpec(ctx, 1, models.ParseFilterSpec("5000-7000|-||Toyota"))
	_ = store.SaveFilterSpec(ctx, 2, models.ParseFilterSpec("-|-||BMW"))

	src := &fakeSource{}
	src.set(listing("auto24:42", "Toyota", 6500))
	n := &fakeNotifier{}
	o := newTestOrchestrator(src, store, n)

	report, err := o.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if report.Matches != 1 || report.Sent != 1 {
		t.Errorf("report: matches=%d sent=%d, want 1/1", report.Matches, report.Sent)
	}
	if len(n.sent) != 1 || n.sent[0] != (sentMessage{1, "auto24:42"}) {
		t.Errorf("sent: got %+v", n.sent)
	}
	if o.State() != StateIdle {
		t.Errorf("state after tick: %v", o.State())
	}
	if last := o.LastReport(); last == nil || last.TickID != report.TickID {
		t.Errorf("LastReport should return the finished tick")
	}
}

func TestOrchestratorDryRunLeavesLedgerEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.SaveFilterSpec(ctx, 1, models.FilterSpec{})

	src := &fakeSource{}
	src.set(listing("auto24:7", "Mazda", 5200))
	o := NewOrchestrator(OrchestratorOptions{
		Sources:  []Source{src},
		Store:    store,
		Notifier: NewLogNotifier(utils.NewDiscardLogger()),
		DryRun:   true,
		Logger:   utils.NewDiscardLogger(),
	})

	for i := 0; i < 2; i++ {
		report, err := o.Tick(ctx)
		if err != nil {
			t.Fatalf("Tick: %v", err)
		}
		if report.Sent != 1 || report.AlreadyNotified != 0 {
			t.Errorf("tick %d: sent=%d already=%d, want 1/0", i, report.Sent, report.AlreadyNotified)
		}
	}
	if entries := store.Entries(); len(entries) != 0 {
		t.Errorf("dry run wrote %d ledger entries", len(entries))
	}
	seen, _ := store.AlreadyNotified(ctx, 1, "auto24:7", models.IntPtr(5200))
	if seen {
		t.Error("listing must stay unsent for the real sender")
	}
}

func TestOrchestratorDedupAcrossTicks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.SaveFilterSpec(ctx, 1, models.FilterSpec{})

	src := &fakeSource{}
	src.set(listing("auto24:1", "Audi", 9000), listing("auto24:2", "Ford", 3000))
	n := &fakeNotifier{}
	o := newTestOrchestrator(src, store, n)

	_, _ = o.Tick(ctx)
	report, _ := o.Tick(ctx)
	if len(n.sent) != 2 {
		t.Errorf("expected 2 sends over two identical ticks, got %d", len(n.sent))
	}
	if report.AlreadyNotified != 2 || report.Sent != 0 {
		t.Errorf("second tick: already=%d sent=%d, want 2/0", report.AlreadyNotified, report.Sent)
	}

	// A price change is a new fact.
	src.set(listing("auto24:1", "Audi", 8500), listing("auto24:2", "Ford", 3000))
	report, _ = o.Tick(ctx)
	if report.Sent != 1 || len(n.sent) != 3 || n.sent[2].listingID != "auto24:1" {
		t.Errorf("price change should re-notify once: report=%+v sent=%+v", report, n.sent)
	}
}

func TestOrchestratorSendFailureContinues(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_ = store.SaveFilterSpec(ctx, 1, models.FilterSpec{})
	_ = store.SaveFilterSpec(ctx, 2, models.FilterSpec{})

	src := &fakeSource{}
	src.set(listing("auto24:1", "Kia", 4000), listing("auto24:2", "Opel", 2500))
	n := &fakeNotifier{failFor: map[int64]bool{1: true}}
	o := newTestOrchestrator(src, store, n)

	report, err := o.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if report.SendFailures != 2 || report.Sent != 2 {
		t.Errorf("report: failures=%d sent=%d, want 2/2", report.SendFailures, report.Sent)
	}
	if ok, _ := store.AlreadyNotified(ctx, 1, "auto24:1", models.IntPtr(4000)); ok {
		t.Error("failed delivery must not be recorded in the ledger")
	}

	// Once the subscriber is reachable again the missed listings go out.
	n.failFor = nil
	report, _ = o.Tick(ctx)
	if report.Sent != 2 || report.AlreadyNotified != 2 {
		t.Errorf("retry tick: sent=%d already=%d, want 2/2", report.Sent, report.AlreadyNotified)
	}
}

func TestOrchestratorFilterLoadFailure(t *testing.T) {
	src := &fakeSource{}
	src.set(listing("auto24:1", "Kia", 4000))
	n := &fakeNotifier{}
	o := newTestOrchestrator(src, failingFilters{storage.NewMemoryStore()}, n)

	report, err := o.Tick(context.Background())
	if err == nil {
		t.Fatal("expected an error when filters cannot be loaded")
	}
	if report.Error == "" || len(n.sent) != 0 {
		t.Errorf("report.Error=%q sent=%d", report.Error, len(n.sent))
	}
	if o.State() != StateIdle {
		t.Errorf("state after failed tick: %v", o.State())
	}
}

func TestOrchestratorEmptyBatchIsNoop(t *testing.T) {
	o := newTestOrchestrator(&fakeSource{}, failingFilters{storage.NewMemoryStore()}, &fakeNotifier{})

	report, err := o.Tick(context.Background())
	if err != nil {
		t.Fatalf("empty batch should not touch the store: %v", err)
	}
	if report.Listings != 0 || report.Documents != 1 {
		t.Errorf("report: %+v", report)
	}
}

func TestOrchestratorCancelledBetweenSends(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := storage.NewMemoryStore()
	_ = store.SaveFilterSpec(ctx, 1, models.FilterSpec{})

	src := &fakeSource{}
	src.set(listing("auto24:1", "Kia", 4000), listing("auto24:2", "Opel", 2500))
	n := &cancellingNotifier{cancel: cancel}
	o := newTestOrchestrator(src, store, n)

	report, err := o.Tick(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Tick error = %v; want context.Canceled", err)
	}
	if report.Sent != 1 || len(store.Entries()) != 1 {
		t.Errorf("only the first delivery should be sent and recorded: sent=%d ledger=%d", report.Sent, len(store.Entries()))
	}
}

// cancellingNotifier cancels the tick after its first delivery.
type cancellingNotifier struct {
	cancel context.CancelFunc
}

func (c *cancellingNotifier) Notify(context.Context, int64, *models.ListingRecord) error {
	c.cancel()
	return nil
}
