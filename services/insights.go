package services

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"car-sniper/models"
	"car-sniper/utils"
)

// InsightService summarises how much of each batch the extractor managed
// to fill in. Coverage dropping to zero usually means the site markup moved.
type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(records []*models.ListingRecord) *models.BatchInsights {
	report := &models.BatchInsights{
		ByBrand: make(map[string]int),
	}

	if len(records) == 0 {
		return report
	}

	report.Total = len(records)

	var total, priced int
	for _, r := range records {
		if r.Year != nil {
			report.WithYear++
		}
		if r.MileageKm != nil {
			report.WithMileage++
		}
		if r.Brand != "" {
			report.WithBrand++
			report.ByBrand[r.Brand]++
		}
		if r.Price == nil {
			continue
		}
		p := *r.Price
		if priced == 0 || p < report.MinPrice {
			report.MinPrice = p
			report.Cheapest = r
		}
		if priced == 0 || p > report.MaxPrice {
			report.MaxPrice = p
		}
		total += p
		priced++
	}
	report.WithPrice = priced

	if priced > 0 {
		report.AvgPrice = round2(float64(total) / float64(priced))
	}

	if report.WithPrice == 0 && report.WithBrand == 0 {
		s.logger.Warn("[insights] %d listings but no price or brand extracted; markup may have changed", report.Total)
	}

	return report
}

func (s *InsightService) Print(w io.Writer, r *models.BatchInsights) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🚗 SCAN INSIGHTS\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Coverage\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Listings collected : \033[1m%d\033[0m\n", r.Total)
	fmt.Fprintf(w, "  With price         : %s\n", coverage(r.WithPrice, r.Total))
	fmt.Fprintf(w, "  With year          : %s\n", coverage(r.WithYear, r.Total))
	fmt.Fprintf(w, "  With mileage       : %s\n", coverage(r.WithMileage, r.Total))
	fmt.Fprintf(w, "  With brand         : %s\n", coverage(r.WithBrand, r.Total))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Price Statistics\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.WithPrice > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m%.2f €\033[0m\n", r.AvgPrice)
		fmt.Fprintf(w, "  Minimum price : \033[1;32m%s €\033[0m\n", models.GroupThousands(r.MinPrice))
		fmt.Fprintf(w, "  Maximum price : \033[1;32m%s €\033[0m\n", models.GroupThousands(r.MaxPrice))
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if r.Cheapest != nil {
		fmt.Fprintf(w, "\033[1;33m  Cheapest Listing\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(r.Cheapest.Title, 50))
		fmt.Fprintf(w, "  %s\n", r.Cheapest.URL)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Listings by Brand\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(r.ByBrand) == 0 {
		fmt.Fprintf(w, "  No brand data\n")
	} else {
		type brandCount struct {
			brand string
			count int
		}
		var brands []brandCount
		for b, cnt := range r.ByBrand {
			brands = append(brands, brandCount{b, cnt})
		}
		sort.Slice(brands, func(i, j int) bool {
			if brands[i].count != brands[j].count {
				return brands[i].count > brands[j].count
			}
			return brands[i].brand < brands[j].brand
		})
		for _, bc := range brands {
			bar := strings.Repeat("█", bc.count)
			fmt.Fprintf(w, "  %-18s %s (%d)\n", truncate(bc.brand, 16), bar, bc.count)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func coverage(n, total int) string {
	if total == 0 {
		return "0"
	}
	return fmt.Sprintf("%d (%.0f%%)", n, float64(n)*100/float64(total))
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
