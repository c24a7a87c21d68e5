// Package notifications is the HTTP intake for user notifications. Accepted
// messages are queued for the worker; nothing is delivered inline.
package notifications

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"

	"github.com/fieldserve/fieldserve/internal/authz"
	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/principal"
	"github.com/fieldserve/fieldserve/internal/trust"
	"github.com/fieldserve/fieldserve/jobs"
)

// Enqueuer queues notification deliveries. *jobs.Client satisfies it.
type Enqueuer interface {
	EnqueueNotification(ctx context.Context, payload jobs.NotificationPayload) (*asynq.TaskInfo, error)
}

// Message is the intake body.
type Message struct {
	RecipientUserID string `json:"recipientUserId" validate:"required,max=64"`
	Subject         string `json:"subject" validate:"required,max=200"`
	Body            string `json:"body" validate:"omitempty,max=4000"`
	ReferenceID     string `json:"referenceId" validate:"omitempty,max=64"`
}

type accepted struct {
	TaskID string `json:"taskId"`
	Queue  string `json:"queue"`
}

// Handler wires the intake endpoint.
type Handler struct {
	logger *slog.Logger
	queue  Enqueuer
	guard  authz.Middleware
	now    func() time.Time
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, queue Enqueuer) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{logger: logger, queue: queue, guard: authz.Middleware{Logger: logger}, now: time.Now}
}

// MountRoutes registers /api/notifications.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/api/notifications", func(r chi.Router) {
		r.Use(h.guard.RequireRoles(principal.Roles()...))
		r.Post("/", h.enqueue)
	})
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := httpx.Bind(r, &msg); err != nil {
		httpx.RespondError(w, err)
		return
	}
	caller := trust.FromContext(r.Context())
	info, err := h.queue.EnqueueNotification(r.Context(), jobs.NotificationPayload{
		RecipientUserID: msg.RecipientUserID,
		SenderUserID:    caller.UserID,
		Subject:         msg.Subject,
		Body:            msg.Body,
		ReferenceID:     msg.ReferenceID,
		RequestID:       middleware.GetReqID(r.Context()),
		RequestedAt:     h.now().UTC(),
	})
	if err != nil {
		h.logger.Error("enqueue notification",
			slog.String("recipient", msg.RecipientUserID),
			slog.String("sender", caller.UserID),
			slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUpstreamUnavailable)
		return
	}
	h.logger.Info("notification queued",
		slog.String("task_id", info.ID),
		slog.String("recipient", msg.RecipientUserID),
		slog.String("sender", caller.UserID))
	httpx.JSON(w, http.StatusAccepted, accepted{TaskID: info.ID, Queue: info.Queue})
}
