package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/coursehub/notification-engine/internal/domain"
	"github.com/coursehub/notification-engine/internal/queue"
	"github.com/coursehub/notification-engine/internal/repository"
)

const recentAttemptLimit = 50

// QueueController is the operational queue surface: pausing consumption
// per work queue, purging backlogs and inspecting broker depth.
type QueueController interface {
	Pause(queue string) error
	Resume(queue string) error
	Purge(ctx context.Context, queue string) (int, error)
	Inspect(ctx context.Context) ([]queue.QueueStats, error)
}

type QueueStatsStore interface {
	CountByStatus(ctx context.Context) ([]repository.StatusCount, error)
}

type AttemptStore interface {
	ListRecent(ctx context.Context, limit int) ([]domain.DeliveryAttempt, error)
}

type QueueHandler struct {
	controller QueueController
	store      QueueStatsStore
	attempts   AttemptStore
}

func NewQueueHandler(controller QueueController, store QueueStatsStore, attempts AttemptStore) (*QueueHandler, error) {
	if controller == nil {
		return nil, fmt.Errorf("queue controller is required")
	}
	if store == nil {
		return nil, fmt.Errorf("notification store is required")
	}
	return &QueueHandler{controller: controller, store: store, attempts: attempts}, nil
}

func RegisterQueueRoutes(router fiber.Router, controller QueueController, store QueueStatsStore, attempts AttemptStore) error {
	h, err := NewQueueHandler(controller, store, attempts)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/queues/stats", h.GetStats)
	v1.Post("/queues/:name/pause", h.Pause)
	v1.Post("/queues/:name/resume", h.Resume)
	v1.Post("/queues/:name/purge", h.Purge)

	return nil
}

type queueStatsResponse struct {
	Queues   []queue.QueueStats  `json:"queues"`
	Statuses map[string]int64    `json:"statuses"`
	Recent   []attemptStatsEntry `json:"recentAttempts,omitempty"`
}

type attemptStatsEntry struct {
	NotificationID string    `json:"notificationId"`
	Channel        string    `json:"channel"`
	AttemptNumber  int       `json:"attemptNumber"`
	Error          *string   `json:"error,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (h *QueueHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.controller.Inspect(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}

	statusCounts, err := h.store.CountByStatus(c.Context())
	if err != nil {
		return toHTTPError(err)
	}
	statuses := make(map[string]int64, len(statusCounts))
	for _, count := range statusCounts {
		statuses[strings.ToLower(count.Status.String())] = count.Count
	}

	resp := queueStatsResponse{
		Queues:   stats,
		Statuses: statuses,
	}

	if h.attempts != nil {
		recent, err := h.attempts.ListRecent(c.Context(), recentAttemptLimit)
		if err != nil {
			return toHTTPError(err)
		}
		for i := range recent {
			resp.Recent = append(resp.Recent, attemptStatsEntry{
				NotificationID: recent[i].NotificationID,
				Channel:        recent[i].Channel.String(),
				AttemptNumber:  recent[i].AttemptNumber,
				Error:          recent[i].Error,
				CreatedAt:      recent[i].CreatedAt,
			})
		}
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *QueueHandler) Pause(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Params("name"))
	if err := h.controller.Pause(name); err != nil {
		if errors.Is(err, queue.ErrUnknownQueue) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"queue": name, "paused": true})
}

func (h *QueueHandler) Resume(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Params("name"))
	if err := h.controller.Resume(name); err != nil {
		if errors.Is(err, queue.ErrUnknownQueue) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"queue": name, "paused": false})
}

func (h *QueueHandler) Purge(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Params("name"))

	known := false
	for _, q := range append(queue.WorkQueueNames(), queue.DLQNames()...) {
		if q == name {
			known = true
			break
		}
	}
	if !known {
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("unknown queue %q", name))
	}

	purged, err := h.controller.Purge(c.Context(), name)
	if err != nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"queue":  name,
		"purged": purged,
	})
}
