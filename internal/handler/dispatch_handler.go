package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/broadcast-dispatch/internal/queue"
	"github.com/kursadbilgin/broadcast-dispatch/internal/service"
)

// Triggerer publishes an asynchronous "run now" request.
type Triggerer interface {
	Trigger(ctx context.Context, source string) (queue.TriggerMessage, error)
}

type DispatchHandler struct {
	dispatcher service.Dispatcher
	triggerer  Triggerer
}

func NewDispatchHandler(dispatcher service.Dispatcher, triggerer Triggerer) (*DispatchHandler, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	return &DispatchHandler{dispatcher: dispatcher, triggerer: triggerer}, nil
}

// RegisterDispatchRoutes mounts the manual dispatch endpoints. The trigger
// route is only mounted when a triggerer is configured.
func RegisterDispatchRoutes(router fiber.Router, dispatcher service.Dispatcher, triggerer Triggerer) error {
	h, err := NewDispatchHandler(dispatcher, triggerer)
	if err != nil {
		return err
	}

	dispatch := router.Group("/v1/dispatch")
	dispatch.Post("/run", h.RunNow)
	if triggerer != nil {
		dispatch.Post("/trigger", h.TriggerRun)
	}

	return nil
}

func (h *DispatchHandler) RunNow(c *fiber.Ctx) error {
	summary, err := h.dispatcher.Run(c.Context(), service.TriggerHTTP)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(summary)
}

func (h *DispatchHandler) TriggerRun(c *fiber.Ctx) error {
	msg, err := h.triggerer.Trigger(c.Context(), service.TriggerHTTP)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"triggerId":   msg.TriggerID,
		"requestedAt": msg.RequestedAt,
	})
}
