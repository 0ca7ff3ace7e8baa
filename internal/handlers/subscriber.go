package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ispkit/sessiond/internal/database"
	"github.com/ispkit/sessiond/internal/events"
	"github.com/ispkit/sessiond/internal/models"
)

type SubscriberHandler struct {
	bus *events.Bus
}

func NewSubscriberHandler(bus *events.Bus) *SubscriberHandler {
	return &SubscriberHandler{bus: bus}
}

// List returns subscribers
func (h *SubscriberHandler) List(c *fiber.Ctx) error {
	var subscribers []models.Subscriber
	query := database.DB.Preload("Service").Preload("Group").Order("username ASC")

	if groupID := c.Query("group_id"); groupID != "" {
		query = query.Where("group_id = ?", groupID)
	}
	if active := c.Query("active"); active != "" {
		query = query.Where("is_active = ?", active == "true")
	}

	if err := query.Find(&subscribers).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch subscribers",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    subscribers,
	})
}

// Get returns one subscriber
func (h *SubscriberHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid subscriber ID",
		})
	}

	var sub models.Subscriber
	if err := database.DB.Preload("Service").Preload("Group").First(&sub, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Subscriber not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    sub,
	})
}

// SetServiceRequest represents a service assignment
type SetServiceRequest struct {
	ServiceID  uint       `json:"service_id"`
	ExpiryDate *time.Time `json:"expiry_date"`
}

// SetService assigns a service to a subscriber. Open sessions converge to
// the new entitlement through the CoA synchronizer.
func (h *SubscriberHandler) SetService(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid subscriber ID",
		})
	}

	var req SetServiceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	var sub models.Subscriber
	if err := database.DB.First(&sub, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Subscriber not found",
		})
	}

	var svc models.Service
	if err := database.DB.First(&svc, req.ServiceID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Service not found",
		})
	}

	sub.ServiceID = &svc.ID
	sub.ExpiryDate = req.ExpiryDate
	if err := database.DB.Save(&sub).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to assign service",
		})
	}

	h.bus.PublishServicePicked(events.ServicePicked{SubscriberID: sub.ID})

	return c.JSON(fiber.Map{
		"success": true,
		"data":    sub,
	})
}

// StopService removes the subscriber's service
func (h *SubscriberHandler) StopService(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid subscriber ID",
		})
	}

	var sub models.Subscriber
	if err := database.DB.First(&sub, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Subscriber not found",
		})
	}

	if err := database.DB.Model(&sub).Updates(map[string]interface{}{
		"service_id":  nil,
		"expiry_date": nil,
	}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to stop service",
		})
	}

	h.bus.PublishServiceStopped(events.ServiceStopped{SubscriberID: sub.ID})

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Service stopped",
	})
}

// BatchStopRequest represents a mass service stop
type BatchStopRequest struct {
	SubscriberIDs []uint `json:"subscriber_ids"`
}

// BatchStopService removes the service from many subscribers at once, e.g.
// at the end of a billing period. The CoA dispatcher paces the resulting
// flips so the BRAS is not flooded.
func (h *SubscriberHandler) BatchStopService(c *fiber.Ctx) error {
	var req BatchStopRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if len(req.SubscriberIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "No subscribers given",
		})
	}

	if err := database.DB.Model(&models.Subscriber{}).
		Where("id IN ?", req.SubscriberIDs).
		Updates(map[string]interface{}{
			"service_id":  nil,
			"expiry_date": nil,
		}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to stop services",
		})
	}

	h.bus.PublishServiceBatchStopped(events.ServiceBatchStopped{SubscriberIDs: req.SubscriberIDs})

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Services stopped",
	})
}
