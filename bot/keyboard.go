package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"car-sniper/models"
)

const (
	brandPrefix   = "brand:"
	confirmSave   = "confirm:save"
	confirmCancel = "confirm:cancel"
	brandsPerRow  = 3
)

// brandKeyboard renders the offered brands as toggles, marking the selected
// ones, followed by a Save / Cancel row.
func brandKeyboard(selected []string) tgbotapi.InlineKeyboardMarkup {
	picked := make(map[string]bool, len(selected))
	for _, b := range selected {
		picked[b] = true
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, b := range models.OfferedBrands() {
		mark := "▫️ "
		if picked[b] {
			mark = "✅ "
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(mark+b, brandPrefix+b))
		if len(row) == brandsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Save ✅", confirmSave),
		tgbotapi.NewInlineKeyboardButtonData("Cancel ❌", confirmCancel),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func selectionText(selected []string) string {
	chosen := "nothing yet"
	if len(selected) > 0 {
		chosen = strings.Join(selected, ", ")
	}
	return "Selected brands: " + chosen + "\nPress Save ✅ when you are done."
}
