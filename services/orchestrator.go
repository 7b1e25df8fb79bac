package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"car-sniper/models"
	"car-sniper/storage"
	"car-sniper/utils"
)

// Source is one marketplace: it fetches its search pages and turns them
// into listing records.
type Source interface {
	Name() string
	Fetch(ctx context.Context) []models.Document
	Collect(docs []models.Document) []*models.ListingRecord
}

// Notifier delivers one matched listing to one subscriber.
type Notifier interface {
	Notify(ctx context.Context, subscriberID int64, rec *models.ListingRecord) error
}

// TickStore is the persistence an orchestrator tick needs.
type TickStore interface {
	storage.FilterStore
	storage.Ledger
}

// State is the orchestrator's position within a tick.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateExtracting
	StateMatching
	StateNotifying
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "FETCHING"
	case StateExtracting:
		return "EXTRACTING"
	case StateMatching:
		return "MATCHING"
	case StateNotifying:
		return "NOTIFYING"
	default:
		return "IDLE"
	}
}

const defaultSendTimeout = 10 * time.Second

// OrchestratorOptions configures an Orchestrator. Snapshot may be nil.
// DryRun leaves the ledger untouched: nothing sent through a log-only
// notifier may count as delivered.
type OrchestratorOptions struct {
	Sources     []Source
	Store       TickStore
	Notifier    Notifier
	Snapshot    storage.SnapshotWriter
	SendTimeout time.Duration
	DryRun      bool
	Logger      *utils.Logger
}

// Orchestrator runs the fetch, extract, match and notify cycle. Ticks must
// not overlap; the Scheduler guarantees that.
type Orchestrator struct {
	sources     []Source
	store       TickStore
	notifier    Notifier
	snapshot    storage.SnapshotWriter
	insights    *InsightService
	sendTimeout time.Duration
	dryRun      bool
	logger      *utils.Logger

	state atomic.Int32

	mu   sync.Mutex
	last *models.TickReport
}

func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}
	timeout := opts.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Orchestrator{
		sources:     opts.Sources,
		store:       opts.Store,
		notifier:    opts.Notifier,
		snapshot:    opts.Snapshot,
		insights:    NewInsightService(logger),
		sendTimeout: timeout,
		dryRun:      opts.DryRun,
		logger:      logger,
	}
}

// State returns the current tick phase.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// StateName is State as text, for the status endpoint.
func (o *Orchestrator) StateName() string {
	return o.State().String()
}

// LastReport returns the report of the most recent finished tick, or nil.
func (o *Orchestrator) LastReport() *models.TickReport {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return nil
	}
	r := *o.last
	return &r
}

type delivery struct {
	subscriberID int64
	rec          *models.ListingRecord
}

// Tick runs one full cycle. Source failures only shrink the batch; a failed
// filter load aborts the tick with an error; ledger and send failures skip
// the affected record. Matches that were not delivered stay unrecorded and
// are retried on the next tick.
func (o *Orchestrator) Tick(ctx context.Context) (*models.TickReport, error) {
	report := &models.TickReport{TickID: uuid.NewString(), StartedAt: time.Now()}
	log := o.logger.With("tick", report.TickID)

	defer func() {
		report.FinishedAt = time.Now()
		o.setState(log, StateIdle)
		o.mu.Lock()
		o.last = report
		o.mu.Unlock()
	}()

	o.setState(log, StateFetching)
	docs := make([][]models.Document, len(o.sources))
	for i, src := range o.sources {
		docs[i] = src.Fetch(ctx)
		report.Documents += len(docs[i])
		log.Debug("[orchestrator] %s: %d documents", src.Name(), len(docs[i]))
	}

	o.setState(log, StateExtracting)
	var records []*models.ListingRecord
	for i, src := range o.sources {
		batch := src.Collect(docs[i])
		log.Debug("[orchestrator] %s: %d listings", src.Name(), len(batch))
		records = append(records, batch...)
	}
	report.Listings = len(records)

	if len(records) == 0 {
		log.Info("[orchestrator] No listings this tick (%d documents)", report.Documents)
		return report, nil
	}

	report.Insights = o.insights.Generate(records)
	if o.snapshot != nil {
		if err := o.snapshot.WriteSnapshot(report.TickID, records); err != nil {
			log.Warn("[orchestrator] Snapshot write failed: %v", err)
		}
	}

	o.setState(log, StateMatching)
	filters, err := o.store.AllFilterSpecs(ctx)
	if err != nil {
		report.Error = err.Error()
		log.Error("[orchestrator] Loading filters failed, skipping tick: %v", err)
		return report, fmt.Errorf("orchestrator: load filters: %w", err)
	}
	report.Subscribers = len(filters)

	var pending []delivery
	for _, f := range filters {
		for _, rec := range records {
			if Matches(rec, f.Spec) {
				pending = append(pending, delivery{subscriberID: f.SubscriberID, rec: rec})
			}
		}
	}
	report.Matches = len(pending)

	o.setState(log, StateNotifying)
	for i, d := range pending {
		if err := ctx.Err(); err != nil {
			report.Error = err.Error()
			log.Warn("[orchestrator] Interrupted with %d deliveries left", len(pending)-i)
			return report, err
		}
		o.deliver(ctx, log, report, d)
	}

	log.Info("[orchestrator] Tick done: %d listings, %d subscribers, %d matches, %d sent, %d already notified, %d failed",
		report.Listings, report.Subscribers, report.Matches, report.Sent, report.AlreadyNotified, report.SendFailures)
	return report, nil
}

func (o *Orchestrator) deliver(ctx context.Context, log *utils.Logger, report *models.TickReport, d delivery) {
	seen, err := o.store.AlreadyNotified(ctx, d.subscriberID, d.rec.ID, d.rec.Price)
	if err != nil {
		report.LedgerErrors++
		log.Error("[orchestrator] Ledger lookup for %d/%s failed: %v", d.subscriberID, d.rec.ID, err)
		return
	}
	if seen {
		report.AlreadyNotified++
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, o.sendTimeout)
	err = o.notifier.Notify(sendCtx, d.subscriberID, d.rec)
	cancel()
	if err != nil {
		report.SendFailures++
		log.Warn("[orchestrator] Sending %s to %d failed: %v", d.rec.ID, d.subscriberID, err)
		return
	}
	report.Sent++
	if o.dryRun {
		return
	}

	meta := models.LedgerMeta{Source: d.rec.Source, URL: d.rec.URL, Title: d.rec.Title}
	if err := o.store.RecordNotified(ctx, d.subscriberID, d.rec.ID, d.rec.Price, meta); err != nil {
		report.LedgerErrors++
		log.Error("[orchestrator] Recording %s for %d failed, it may be sent again: %v", d.rec.ID, d.subscriberID, err)
	}
}

func (o *Orchestrator) setState(log *utils.Logger, s State) {
	prev := State(o.state.Swap(int32(s)))
	if prev != s {
		log.Debug("[orchestrator] %s -> %s", prev, s)
	}
}
