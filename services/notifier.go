package services

import (
	"context"

	"car-sniper/models"
	"car-sniper/utils"
)

// LogNotifier writes notifications to the log instead of sending them. It
// backs dry runs.
type LogNotifier struct {
	logger *utils.Logger
}

func NewLogNotifier(logger *utils.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, subscriberID int64, rec *models.ListingRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.Info("[dry-run] To %d:\n%s", subscriberID, FormatNotification(rec))
	return nil
}
