package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/ispkit/sessiond/internal/database"
	"github.com/ispkit/sessiond/internal/models"
)

type NasHandler struct{}

func NewNasHandler() *NasHandler {
	return &NasHandler{}
}

// List returns all NAS devices
func (h *NasHandler) List(c *fiber.Ctx) error {
	var nasList []models.Nas
	if err := database.DB.Order("name ASC").Find(&nasList).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch NAS devices",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    nasList,
	})
}

// Get returns a single NAS device with its open session count
func (h *NasHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid NAS ID",
		})
	}

	var nas models.Nas
	if err := database.DB.First(&nas, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "NAS not found",
		})
	}

	var sessionCount int64
	database.DB.Model(&models.Session{}).
		Where("nas_ip_address = ? AND closed = ?", nas.IPAddress, false).
		Count(&sessionCount)

	return c.JSON(fiber.Map{
		"success":         true,
		"data":            nas,
		"active_sessions": sessionCount,
	})
}

// CreateNasRequest represents create/update NAS request
type CreateNasRequest struct {
	Name        string           `json:"name"`
	IPAddress   string           `json:"ip_address"`
	Vendor      models.NasVendor `json:"vendor"`
	Description string           `json:"description"`
	Secret      string           `json:"secret"`
	AuthPort    int              `json:"auth_port"`
	AcctPort    int              `json:"acct_port"`
	CoAPort     int              `json:"coa_port"`
}

// Create registers a new NAS
func (h *NasHandler) Create(c *fiber.Ctx) error {
	var req CreateNasRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.Name == "" || req.IPAddress == "" || req.Secret == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Name, IP address and secret are required",
		})
	}

	if req.Vendor != models.NasVendorJuniper && req.Vendor != models.NasVendorMikrotik {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Unknown vendor",
		})
	}

	nas := models.Nas{
		Name:        req.Name,
		IPAddress:   req.IPAddress,
		Vendor:      req.Vendor,
		Description: req.Description,
		Secret:      req.Secret,
		AuthPort:    req.AuthPort,
		AcctPort:    req.AcctPort,
		CoAPort:     req.CoAPort,
		IsActive:    true,
	}
	if nas.CoAPort == 0 {
		nas.CoAPort = 3799
	}

	if err := database.DB.Create(&nas).Error; err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create NAS (duplicate IP?)",
		})
	}

	database.InvalidateNASCache()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    nas,
	})
}

// Update modifies a NAS
func (h *NasHandler) Update(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid NAS ID",
		})
	}

	var nas models.Nas
	if err := database.DB.First(&nas, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "NAS not found",
		})
	}

	var req CreateNasRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.Name != "" {
		nas.Name = req.Name
	}
	if req.IPAddress != "" {
		nas.IPAddress = req.IPAddress
	}
	if req.Vendor != "" {
		nas.Vendor = req.Vendor
	}
	if req.Secret != "" {
		nas.Secret = req.Secret
	}
	if req.CoAPort != 0 {
		nas.CoAPort = req.CoAPort
	}
	nas.Description = req.Description

	if err := database.DB.Save(&nas).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update NAS",
		})
	}

	database.InvalidateNASCache()

	return c.JSON(fiber.Map{
		"success": true,
		"data":    nas,
	})
}

// Delete removes a NAS
func (h *NasHandler) Delete(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid NAS ID",
		})
	}

	if err := database.DB.Delete(&models.Nas{}, id).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to delete NAS",
		})
	}

	database.InvalidateNASCache()

	return c.JSON(fiber.Map{
		"success": true,
		"message": "NAS deleted",
	})
}
