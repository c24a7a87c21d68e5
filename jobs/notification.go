package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/fieldserve/fieldserve/internal/jobs"
	"github.com/fieldserve/fieldserve/internal/platform/cache"
)

// DeliveryRecord is the entry appended to the delivery log.
type DeliveryRecord struct {
	TaskID          string    `json:"taskId"`
	RecipientUserID string    `json:"recipientUserId"`
	SenderUserID    string    `json:"senderUserId"`
	Subject         string    `json:"subject"`
	ReferenceID     string    `json:"referenceId,omitempty"`
	DeliveredAt     time.Time `json:"deliveredAt"`
}

// NotificationJob delivers notifications. Delivery is a structured log line
// plus a best-effort record in a capped Redis list.
type NotificationJob struct {
	log     redis.Cmdable
	key     string
	size    int64
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	now     func() time.Time
}

// NewNotificationJob constructs the job. A nil log disables the delivery record.
func NewNotificationJob(log redis.Cmdable, key string, size int64, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotificationJob {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &NotificationJob{log: log, key: key, size: size, logger: logger, metrics: metrics, now: time.Now}
}

// Handle processes TaskNotificationSend tasks.
func (j *NotificationJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskNotificationSend)
	var payload NotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry))
	}
	if err := payload.Validate(); err != nil {
		return tracker.End(fmt.Errorf("%v: %w", err, asynq.SkipRetry))
	}
	taskID, _ := asynq.GetTaskID(ctx)

	j.logger.Info("notification delivered",
		slog.String("task_id", taskID),
		slog.String("recipient", payload.RecipientUserID),
		slog.String("sender", payload.SenderUserID),
		slog.String("subject", payload.Subject),
		slog.String("reference_id", payload.ReferenceID),
		slog.String("request_id", payload.RequestID))

	if j.log != nil {
		record, err := json.Marshal(DeliveryRecord{
			TaskID:          taskID,
			RecipientUserID: payload.RecipientUserID,
			SenderUserID:    payload.SenderUserID,
			Subject:         payload.Subject,
			ReferenceID:     payload.ReferenceID,
			DeliveredAt:     j.now().UTC(),
		})
		if err == nil {
			err = cache.PushCapped(ctx, j.log, j.key, record, j.size)
		}
		if err != nil {
			// The notification itself went out; a missing log entry is not a reason to retry.
			j.logger.Warn("delivery log append failed", slog.String("task_id", taskID), slog.Any("error", err))
			j.metrics.LogWriteFailed()
		}
	}
	return tracker.End(nil)
}
