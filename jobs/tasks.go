package jobs

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotificationSend delivers one notification to a user.
	TaskNotificationSend = "notification:send"
)

// NotificationPayload describes a single notification delivery.
type NotificationPayload struct {
	RecipientUserID string    `json:"recipientUserId"`
	SenderUserID    string    `json:"senderUserId"`
	Subject         string    `json:"subject"`
	Body            string    `json:"body"`
	ReferenceID     string    `json:"referenceId,omitempty"`
	RequestID       string    `json:"requestId,omitempty"`
	RequestedAt     time.Time `json:"requestedAt"`
}

// Validate rejects payloads that cannot be delivered.
func (p NotificationPayload) Validate() error {
	if strings.TrimSpace(p.RecipientUserID) == "" {
		return errors.New("notification: recipient required")
	}
	if strings.TrimSpace(p.Subject) == "" && strings.TrimSpace(p.Body) == "" {
		return errors.New("notification: subject or body required")
	}
	return nil
}

// NewNotificationTask constructs an Asynq task.
func NewNotificationTask(payload NotificationPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationSend, data, asynq.MaxRetry(3), asynq.Timeout(30*time.Second)), nil
}
