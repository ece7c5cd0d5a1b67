package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ecodeclub/ekit/slice"
	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/broadcast-dispatch/internal/domain"
)

type JobService interface {
	Enqueue(ctx context.Context, title, body string, scheduledAt time.Time) (*domain.ScheduledJob, error)
	Cancel(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]domain.ScheduledJob, error)
	Get(ctx context.Context, id string) (*domain.ScheduledJob, error)
	Delete(ctx context.Context, id string) error
}

type JobHandler struct {
	service JobService
}

func NewJobHandler(service JobService) (*JobHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("job service is required")
	}
	return &JobHandler{service: service}, nil
}

func RegisterJobRoutes(router fiber.Router, service JobService) error {
	h, err := NewJobHandler(service)
	if err != nil {
		return err
	}

	jobs := router.Group("/v1/scheduled-notifications")
	jobs.Post("/", h.EnqueueJob)
	jobs.Get("/", h.ListActiveJobs)
	jobs.Get("/:id", h.GetJob)
	jobs.Post("/:id/cancel", h.CancelJob)
	jobs.Delete("/:id", h.DeleteJob)

	return nil
}

type enqueueJobRequest struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	ScheduledAt string `json:"scheduledAt"`
}

type jobResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type listJobsResponse struct {
	Data []jobResponse `json:"data"`
}

func (h *JobHandler) EnqueueJob(c *fiber.Ctx) error {
	var req enqueueJobRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	scheduledAt, err := parseRFC3339(req.ScheduledAt, "scheduledAt")
	if err != nil {
		return err
	}

	job, err := h.service.Enqueue(c.Context(), req.Title, req.Body, scheduledAt)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(toJobResponse(job))
}

func (h *JobHandler) ListActiveJobs(c *fiber.Ctx) error {
	jobs, err := h.service.ListActive(c.Context())
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(listJobsResponse{
		Data: slice.Map(jobs, func(idx int, src domain.ScheduledJob) jobResponse {
			return toJobResponse(&src)
		}),
	})
}

func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	job, err := h.service.Get(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(toJobResponse(job))
}

func (h *JobHandler) CancelJob(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Cancel(c.Context(), id); err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":     id,
		"status": domain.JobStatusCancelled.String(),
	})
}

func (h *JobHandler) DeleteJob(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Context(), strings.TrimSpace(c.Params("id"))); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func parseRFC3339(value string, field string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", domain.ErrValidation, field)
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return t, nil
}

func toJobResponse(j *domain.ScheduledJob) jobResponse {
	if j == nil {
		return jobResponse{}
	}

	return jobResponse{
		ID:          j.ID,
		Title:       j.Title,
		Body:        j.Body,
		ScheduledAt: j.ScheduledAt.UTC(),
		Status:      j.Status.String(),
		CreatedAt:   j.CreatedAt.UTC(),
		UpdatedAt:   j.UpdatedAt.UTC(),
	}
}
