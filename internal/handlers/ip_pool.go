package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/ispkit/sessiond/internal/database"
	"github.com/ispkit/sessiond/internal/models"
)

type IPPoolHandler struct{}

func NewIPPoolHandler() *IPPoolHandler {
	return &IPPoolHandler{}
}

// List returns all IP pools
func (h *IPPoolHandler) List(c *fiber.Ctx) error {
	var pools []models.IPPool
	query := database.DB.Preload("Groups").Order("network ASC")

	if kind := c.Query("kind"); kind != "" {
		query = query.Where("kind = ?", kind)
	}

	if err := query.Find(&pools).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch IP pools",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    pools,
	})
}

// Get returns a single pool with its lease occupancy
func (h *IPPoolHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid pool ID",
		})
	}

	var pool models.IPPool
	if err := database.DB.Preload("Groups").First(&pool, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Pool not found",
		})
	}

	var leaseCount int64
	database.DB.Model(&models.Lease{}).Where("pool_id = ?", pool.ID).Count(&leaseCount)

	return c.JSON(fiber.Map{
		"success":      true,
		"data":         pool,
		"active_leases": leaseCount,
	})
}

// Create creates a new pool. No two pools may overlap, whatever their
// kind: an address must map back to exactly one pool.
func (h *IPPoolHandler) Create(c *fiber.Ctx) error {
	var pool models.IPPool
	if err := c.BodyParser(&pool); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if !pool.Validate() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid pool definition: check network, ip_start and ip_end",
		})
	}

	if msg, ok := h.checkOverlap(&pool, 0); !ok {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": msg,
		})
	}

	if err := database.DB.Create(&pool).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create pool",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    pool,
	})
}

// Update modifies a pool
func (h *IPPoolHandler) Update(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid pool ID",
		})
	}

	var pool models.IPPool
	if err := database.DB.First(&pool, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Pool not found",
		})
	}

	if err := c.BodyParser(&pool); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}
	pool.ID = uint(id)

	if !pool.Validate() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid pool definition: check network, ip_start and ip_end",
		})
	}

	if msg, ok := h.checkOverlap(&pool, pool.ID); !ok {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": msg,
		})
	}

	if err := database.DB.Save(&pool).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update pool",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    pool,
	})
}

// Delete removes a pool. Pools with live leases cannot be deleted.
func (h *IPPoolHandler) Delete(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid pool ID",
		})
	}

	var leaseCount int64
	database.DB.Model(&models.Lease{}).Where("pool_id = ?", id).Count(&leaseCount)
	if leaseCount > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Pool has active leases and cannot be deleted",
		})
	}

	if err := database.DB.Delete(&models.IPPool{}, id).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete pool",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Pool deleted",
	})
}

// checkOverlap enforces address-space disjointness against every other
// pool regardless of kind or VLAN.
func (h *IPPoolHandler) checkOverlap(pool *models.IPPool, excludeID uint) (string, bool) {
	var existing []models.IPPool
	query := database.DB.Model(&models.IPPool{})
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Find(&existing).Error; err != nil {
		return "Failed to check pool overlap", false
	}
	return overlapMessage(pool, existing)
}

func overlapMessage(pool *models.IPPool, existing []models.IPPool) (string, bool) {
	for i := range existing {
		if pool.Overlaps(&existing[i]) {
			return "Pool range overlaps existing pool " + existing[i].Name, false
		}
	}
	return "", true
}
