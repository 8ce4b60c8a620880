package usecase

import (
	"context"
	"encoding/json"
	"time"

	"SignalGate/internal/domain/models"
	"SignalGate/pkg/logger"
	"SignalGate/pkg/queue"
)

// AlertJob is the notification boundary: it logs alerts pulled off the queue.
type AlertJob struct {
	kind string
	log  *logger.Logger
}

// NewAlertJobs returns one job per alert kind.
func NewAlertJobs(log *logger.Logger) []queue.Job {
	kinds := []string{models.AlertExecutionFailed, models.AlertStreamTerminated}
	jobs := make([]queue.Job, 0, len(kinds))
	for _, k := range kinds {
		jobs = append(jobs, &AlertJob{kind: k, log: log.Named("alerts")})
	}
	return jobs
}

func (j *AlertJob) Name() string { return "alert:" + j.kind }
func (j *AlertJob) Type() string { return j.kind }

func (j *AlertJob) Handle(_ context.Context, payload json.RawMessage) error {
	a, err := queue.Decode[models.Alert](payload)
	if err != nil {
		return err
	}
	j.log.Warn("ALERT",
		logger.String("kind", a.Kind),
		logger.String("symbol", a.Symbol),
		logger.String("message", a.Message),
		logger.String("at", a.Time.Format(time.RFC3339)))
	return nil
}

// LogDigestJob logs de-duplicated error digests forwarded by the log collector.
type LogDigestJob struct {
	log *logger.Logger
}

func NewLogDigestJob(log *logger.Logger) *LogDigestJob {
	return &LogDigestJob{log: log.Named("alerts")}
}

func (j *LogDigestJob) Name() string { return "alert:" + models.AlertLogDigest }
func (j *LogDigestJob) Type() string { return models.AlertLogDigest }

func (j *LogDigestJob) Handle(_ context.Context, payload json.RawMessage) error {
	entries, err := queue.Decode[[]logger.AggregatedLogEntry](payload)
	if err != nil {
		return err
	}
	for _, e := range entries {
		j.log.Warn("error digest",
			logger.String("message", e.Message),
			logger.String("caller", e.Caller),
			logger.Int("count", e.Count),
			logger.Any("fields", e.Fields))
	}
	return nil
}
