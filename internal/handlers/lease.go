package handlers

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ispkit/sessiond/internal/database"
	"github.com/ispkit/sessiond/internal/models"
)

type LeaseHandler struct{}

func NewLeaseHandler() *LeaseHandler {
	return &LeaseHandler{}
}

// List returns leases, filterable by pool, customer and kind
func (h *LeaseHandler) List(c *fiber.Ctx) error {
	var leases []models.Lease
	query := database.DB.Preload("Pool").Order("ip ASC")

	if poolID := c.Query("pool_id"); poolID != "" {
		query = query.Where("pool_id = ?", poolID)
	}
	if customerID := c.Query("customer_id"); customerID != "" {
		query = query.Where("customer_id = ?", customerID)
	}
	if dynamic := c.Query("dynamic"); dynamic != "" {
		query = query.Where("is_dynamic = ?", dynamic == "true")
	}

	if err := query.Find(&leases).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch leases",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    leases,
	})
}

// CreateStaticRequest represents a static lease assignment
type CreateStaticRequest struct {
	IP         string `json:"ip"`
	MAC        string `json:"mac"`
	CustomerID *uint  `json:"customer_id"`
	PoolID     *uint  `json:"pool_id"`
}

// CreateStatic pins an address to a subscriber. Static leases survive
// session teardown and are never reclaimed by the reaper.
func (h *LeaseHandler) CreateStatic(c *fiber.Ctx) error {
	var req CreateStaticRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if net.ParseIP(req.IP) == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid IP address",
		})
	}

	if req.PoolID != nil {
		var pool models.IPPool
		if err := database.DB.First(&pool, *req.PoolID).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "Pool not found",
			})
		}
		if !pool.Contains(req.IP) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "IP is outside the pool's range",
			})
		}
	}

	now := time.Now()
	l := models.Lease{
		IP:         req.IP,
		MAC:        req.MAC,
		PoolID:     req.PoolID,
		CustomerID: req.CustomerID,
		IsDynamic:  false,
		LeaseTime:  now,
		LastUpdate: now,
		State:      models.LeaseStateInactive,
	}

	if err := database.DB.Create(&l).Error; err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Address is already leased",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    l,
	})
}

// Release frees a lease by ID. Dynamic leases are deleted; static ones
// only lose their device binding, the address assignment survives.
func (h *LeaseHandler) Release(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid lease ID",
		})
	}

	var l models.Lease
	if err := database.DB.First(&l, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Lease not found",
		})
	}

	if !l.IsDynamic {
		l.Unbind()
		if err := database.DB.Save(&l).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Failed to unbind lease",
			})
		}
		return c.JSON(fiber.Map{
			"success": true,
			"message": "Static lease unbound",
		})
	}

	if err := database.DB.Delete(&l).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to release lease",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Lease released",
	})
}
