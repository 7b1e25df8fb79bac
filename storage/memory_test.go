package storage

import (
	"context"
	"testing"

	"car-sniper/models"
)

func TestLedgerIdempotentRecord(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	meta := models.LedgerMeta{Source: "auto24", URL: "https://www.auto24.ee/used/42", Title: "Toyota"}

	for i := 0; i < 2; i++ {
		if err := s.RecordNotified(ctx, 1, "auto24:42", models.IntPtr(5000), meta); err != nil {
			t.Fatalf("RecordNotified #%d: %v", i+1, err)
		}
	}
	ok, err := s.AlreadyNotified(ctx, 1, "auto24:42", models.IntPtr(5000))
	if err != nil || !ok {
		t.Errorf("AlreadyNotified = %v, %v; want true, nil", ok, err)
	}
	if n := len(s.Entries()); n != 1 {
		t.Errorf("expected 1 ledger entry, got %d", n)
	}
}

func TestLedgerPriceChangeRetriggers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.RecordNotified(ctx, 1, "auto24:42", models.IntPtr(5000), models.LedgerMeta{})

	tests := []struct {
		name  string
		sub   int64
		id    string
		price *int
		want  bool
	}{
		{"same key", 1, "auto24:42", models.IntPtr(5000), true},
		{"new price", 1, "auto24:42", models.IntPtr(6000), false},
		{"unknown price", 1, "auto24:42", nil, false},
		{"other subscriber", 2, "auto24:42", models.IntPtr(5000), false},
		{"other listing", 1, "auto24:43", models.IntPtr(5000), false},
	}
	for _, tt := range tests {
		got, err := s.AlreadyNotified(ctx, tt.sub, tt.id, tt.price)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: AlreadyNotified = %v; want %v", tt.name, got, tt.want)
		}
	}
}

func TestLedgerNilPriceIsDistinct(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.RecordNotified(ctx, 1, "auto24:7", nil, models.LedgerMeta{})

	if ok, _ := s.AlreadyNotified(ctx, 1, "auto24:7", nil); !ok {
		t.Error("nil-price key should be recorded")
	}
	if ok, _ := s.AlreadyNotified(ctx, 1, "auto24:7", models.IntPtr(0)); ok {
		t.Error("a known price of 0 must not collapse with an unknown price")
	}
}

func TestFilterStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, found, _ := s.LoadFilterSpec(ctx, 1); found {
		t.Error("expected no spec before save")
	}

	first := models.ParseFilterSpec("2000-6000|2006-2020|250000|Toyota,BMW")
	second := models.ParseFilterSpec("-|2010-||")
	_ = s.SaveFilterSpec(ctx, 1, first)
	_ = s.SaveFilterSpec(ctx, 1, second)
	_ = s.SaveFilterSpec(ctx, 3, first)

	got, found, err := s.LoadFilterSpec(ctx, 1)
	if err != nil || !found {
		t.Fatalf("LoadFilterSpec: found=%v err=%v", found, err)
	}
	if !got.Equal(second) {
		t.Errorf("save should replace wholesale: got %q, want %q", got.Encode(), second.Encode())
	}

	all, _ := s.AllFilterSpecs(ctx)
	if len(all) != 2 || all[0].SubscriberID != 1 || all[1].SubscriberID != 3 {
		t.Errorf("AllFilterSpecs: got %+v", all)
	}
}

func TestLedgerEntriesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.RecordNotified(ctx, 1, "auto24:1", models.IntPtr(1000), models.LedgerMeta{})
	_ = s.RecordNotified(ctx, 2, "auto24:2", models.IntPtr(2000), models.LedgerMeta{})
	_ = s.RecordNotified(ctx, 1, "auto24:3", nil, models.LedgerMeta{})
	_ = s.RecordNotified(ctx, 1, "auto24:4", models.IntPtr(4000), models.LedgerMeta{})

	got, err := s.LedgerEntries(ctx, 1, 2)
	if err != nil {
		t.Fatalf("LedgerEntries: %v", err)
	}
	if len(got) != 2 || got[0].ListingID != "auto24:4" || got[1].ListingID != "auto24:3" {
		t.Errorf("LedgerEntries: got %+v", got)
	}
}
