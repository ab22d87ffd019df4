package handler

import (
	"errors"

	"backend-clinic-queue/internal/models"
	"backend-clinic-queue/internal/queue"
	"backend-clinic-queue/internal/realtime"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

type QueueHandler struct {
	store *queue.Store
	hub   *realtime.Hub
	log   zerolog.Logger
}

func NewQueueHandler(store *queue.Store, hub *realtime.Hub, log zerolog.Logger) *QueueHandler {
	return &QueueHandler{
		store: store,
		hub:   hub,
		log:   log.With().Str("comp", "http").Logger(),
	}
}

// GetTodayQueue - today's entries, doctor sessions always see their own scope.
func (h *QueueHandler) GetTodayQueue(c *fiber.Ctx) error {
	doctorID := c.Query("doctor_id")
	if role := c.Locals("role").(string); role == models.RoleDoctor || role == models.RoleNurse {
		if own := c.Locals("doctor_id").(string); own != "" {
			doctorID = own
		}
	}

	entries, err := h.store.GetTodayQueue(c.Context(), doctorID)
	if err != nil {
		return h.fail(c, err)
	}
	if entries == nil {
		entries = []models.QueueEntry{}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    entries,
	})
}

type callNextRequest struct {
	DoctorID string `json:"doctor_id"`
}

// CallNext - call the next waiting patient for a doctor.
func (h *QueueHandler) CallNext(c *fiber.Ctx) error {
	var req callNextRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}

	doctorID := req.DoctorID
	if own := c.Locals("doctor_id").(string); own != "" {
		doctorID = own
	}

	entry, err := h.store.CallNext(c.Context(), doctorID)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    entry,
	})
}

type updateStatusRequest struct {
	Status models.QueueStatus `json:"status"`
}

// UpdateStatus - move one entry through the status machine.
func (h *QueueHandler) UpdateStatus(c *fiber.Ctx) error {
	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if !models.ValidStatus(req.Status) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Unknown status",
		})
	}

	entry, err := h.store.SetStatus(c.Context(), c.Params("appointmentId"), req.Status)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    entry,
	})
}

type updatePriorityRequest struct {
	PriorityLevel models.PriorityLevel `json:"priority_level"`
}

// UpdatePriority - change the priority tier of a waiting entry.
func (h *QueueHandler) UpdatePriority(c *fiber.Ctx) error {
	var req updatePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid request body",
		})
	}
	if !models.ValidPriority(req.PriorityLevel) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Unknown priority level",
		})
	}

	entry, err := h.store.SetPriority(c.Context(), c.Params("appointmentId"), req.PriorityLevel)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    entry,
	})
}

// AssignNumber - give a waiting appointment its queue number for today.
func (h *QueueHandler) AssignNumber(c *fiber.Ctx) error {
	entry, err := h.store.AssignNumber(c.Context(), c.Params("appointmentId"))
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    entry,
	})
}

// NowServing - public live counter for waiting-room display boards.
func (h *QueueHandler) NowServing(c *fiber.Ctx) error {
	num, err := h.store.NowServing(c.Context(), c.Params("doctorId"))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"now_serving": num,
	})
}

func (h *QueueHandler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Queue entry not found for today",
		})
	case errors.Is(err, queue.ErrQueueEmpty):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "No waiting patients",
		})
	case errors.Is(err, queue.ErrInvalidTransition),
		errors.Is(err, queue.ErrInvalidState),
		errors.Is(err, queue.ErrAlreadyAssigned),
		errors.Is(err, queue.ErrDoctorBusy):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	default:
		h.log.Error().Err(err).Msg("queue operation failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Internal server error",
		})
	}
}
