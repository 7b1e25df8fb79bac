package services

import (
	"fmt"
	"strconv"
	"strings"

	"car-sniper/models"
)

const defaultTitle = "New listing"

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// FormatNotification renders the Markdown message pushed to a subscriber.
func FormatNotification(rec *models.ListingRecord) string {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		title = defaultTitle
	}
	brand := rec.Brand
	if brand == "" {
		brand = "-"
	}
	year := "-"
	if rec.Year != nil {
		year = strconv.Itoa(*rec.Year)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔔 *%s*\n", EscapeMarkdown(title))
	fmt.Fprintf(&b, "Brand: *%s*  •  Year: *%s*  •  Mileage: *%s km*\n", EscapeMarkdown(brand), year, formatOptional(rec.MileageKm))
	fmt.Fprintf(&b, "Price: *%s €*\n", formatOptional(rec.Price))
	fmt.Fprintf(&b, "Source: *%s*\n", EscapeMarkdown(rec.Source))
	fmt.Fprintf(&b, "[Open listing](%s)", rec.URL)
	return b.String()
}

// EscapeMarkdown escapes the characters legacy Telegram Markdown treats as markup.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

func formatOptional(v *int) string {
	if v == nil {
		return "-"
	}
	return models.GroupThousands(*v)
}
