package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBillingSeriesIntegrity scans invoice series for numbering
	// violations.
	TaskBillingSeriesIntegrity = "billing:series_integrity"
)

// SeriesIntegrityPayload scopes a series integrity scan.
type SeriesIntegrityPayload struct {
	// Year limits the scan to series of one year; 0 scans all years.
	Year int `json:"year"`
}

// NewSeriesIntegrityTask constructs an Asynq task.
func NewSeriesIntegrityTask(year int) (*asynq.Task, error) {
	data, err := json.Marshal(SeriesIntegrityPayload{Year: year})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBillingSeriesIntegrity, data), nil
}
