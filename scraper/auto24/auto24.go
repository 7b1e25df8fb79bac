package auto24

import (
	"fmt"
	"regexp"
	"strings"

	"car-sniper/config"
	"car-sniper/scraper"
	"car-sniper/services"
	"car-sniper/utils"
)

const source = "auto24"

var (
	usedPathID     = regexp.MustCompile(`/used/(\d+)(?:/|$)`)
	soidukidPathID = regexp.MustCompile(`/soidukid/(\d+)(?:/|$)`)
)

// Rules returns the listing conventions of auto24.ee and its mirrors.
func Rules(origin string, maxBatch int) scraper.SiteRules {
	origin = strings.TrimRight(origin, "/")
	return scraper.SiteRules{
		Source:         source,
		Origin:         origin,
		HostSuffix:     "auto24.ee",
		IDAttrs:        []string{"data-id", "data-ad-id", "data-listing-id", "data-item-id"},
		PathMarkers:    []string{"/soidukid/", "/used/"},
		QueryIDParams:  []string{"id"},
		PathIDPatterns: []*regexp.Regexp{usedPathID, soidukidPathID},
		RejectPaths:    []string{"/login", "/logout", "/session", "/kasutaja", "/auth"},
		DetailURL:      origin + "/used/%s",
		Containers:     "article, li, tr, div",
		MaxBatch:       maxBatch,
	}
}

// Headers are sent with every request to the site.
func Headers(origin string) map[string]string {
	return map[string]string{
		"Accept":          "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "et-EE,et;q=0.9,en;q=0.8",
		"Referer":         strings.TrimRight(origin, "/") + "/",
	}
}

// New builds the auto24 source from configuration.
func New(cfg *config.Config, fetcher scraper.Fetcher, logger *utils.Logger) (*scraper.Source, error) {
	collector, err := scraper.NewCollector(Rules(cfg.SiteOrigin, cfg.MaxBatch), services.NewExtractor(), logger)
	if err != nil {
		return nil, fmt.Errorf("auto24: %w", err)
	}
	return scraper.NewSource(scraper.SourceConfig{
		Name:        source,
		URLs:        cfg.SourceURLs,
		Headers:     Headers(cfg.SiteOrigin),
		Fetcher:     fetcher,
		Collector:   collector,
		Timeout:     cfg.FetchTimeout,
		Retries:     cfg.FetchRetries,
		Concurrency: cfg.MaxConcurrency,
		RateLimitMs: cfg.RateLimitMs,
		Logger:      logger,
	}), nil
}
