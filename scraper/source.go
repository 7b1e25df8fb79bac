package scraper

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"car-sniper/models"
	"car-sniper/utils"
)

// SourceConfig wires one marketplace: which pages to poll, how to fetch
// them and how to read them.
type SourceConfig struct {
	Name        string
	URLs        []string
	Headers     map[string]string
	Fetcher     Fetcher
	Collector   *Collector
	Timeout     time.Duration
	Retries     int
	Concurrency int
	RateLimitMs int
	Logger      *utils.Logger
}

// Source polls a fixed list of search pages.
type Source struct {
	cfg   SourceConfig
	retry *utils.RetryConfig
	now   func() time.Time
}

func NewSource(cfg SourceConfig) *Source {
	if cfg.Logger == nil {
		cfg.Logger = utils.NewDiscardLogger()
	}
	return &Source{
		cfg: cfg,
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.Retries + 1,
			BaseDelay:   2 * time.Second,
			Logger:      cfg.Logger,
		},
		now: time.Now,
	}
}

func (s *Source) Name() string { return s.cfg.Name }

// Fetch retrieves every configured page concurrently. A page that keeps
// failing (transport error, timeout, non-200) is logged and left out; the
// others are returned in configuration order.
func (s *Source) Fetch(ctx context.Context) []models.Document {
	pool := utils.NewWorkerPool(s.cfg.Concurrency, s.cfg.RateLimitMs)

	var mu sync.Mutex
	results := make([]*models.Document, len(s.cfg.URLs))

	for i, u := range s.cfg.URLs {
		i, u := i, u
		pool.Submit(ctx, func(ctx context.Context) {
			body, err := s.fetchOne(ctx, u)
			if err != nil {
				s.cfg.Logger.Warn("[%s] Fetch %s failed: %v", s.cfg.Name, u, err)
				return
			}
			mu.Lock()
			results[i] = &models.Document{Source: s.cfg.Name, URL: u, Body: body, FetchedAt: s.now()}
			mu.Unlock()
		})
	}
	pool.Wait()

	docs := make([]models.Document, 0, len(results))
	for _, d := range results {
		if d != nil {
			docs = append(docs, *d)
		}
	}
	s.cfg.Logger.Info("[%s] Fetched %d/%d pages", s.cfg.Name, len(docs), len(s.cfg.URLs))
	return docs
}

func (s *Source) fetchOne(ctx context.Context, u string) ([]byte, error) {
	var body []byte
	err := s.retry.Do(ctx, "fetch "+u, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		status, b, err := s.cfg.Fetcher.Fetch(ctx, u, s.cfg.Headers, s.cfg.Timeout)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("unexpected status %d", status)
		}
		body = b
		return nil
	})
	return body, err
}

// Collect hands the documents to the site's collector.
func (s *Source) Collect(docs []models.Document) []*models.ListingRecord {
	return s.cfg.Collector.Collect(docs)
}
