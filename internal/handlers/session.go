package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/ispkit/sessiond/internal/database"
	"github.com/ispkit/sessiond/internal/frontend"
	"github.com/ispkit/sessiond/internal/models"
	"github.com/ispkit/sessiond/internal/session"
	"github.com/ispkit/sessiond/internal/vendors"
)

type SessionHandler struct {
	sessions *session.Manager
	coa      *frontend.CoAClient
}

func NewSessionHandler(sessions *session.Manager, coa *frontend.CoAClient) *SessionHandler {
	return &SessionHandler{sessions: sessions, coa: coa}
}

// List returns sessions, open by default
func (h *SessionHandler) List(c *fiber.Ctx) error {
	var sessions []models.Session
	query := database.DB.Preload("Lease").Order("assign_time DESC")

	if c.Query("closed") == "true" {
		query = query.Where("closed = ?", true)
	} else if c.Query("all") != "true" {
		query = query.Where("closed = ?", false)
	}
	if customerID := c.Query("customer_id"); customerID != "" {
		query = query.Where("customer_id = ?", customerID)
	}
	if username := c.Query("username"); username != "" {
		query = query.Where("radius_username = ?", username)
	}

	limit := 100
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}

	if err := query.Limit(limit).Find(&sessions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch sessions",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    sessions,
	})
}

// Get returns one session
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid session ID",
		})
	}

	var sess models.Session
	if err := database.DB.Preload("Lease").First(&sess, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Session not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    sess,
	})
}

// Finish force-terminates a session: a Disconnect-Request goes to the NAS,
// the session row is closed and its dynamic lease released. The BRAS's own
// Accounting-Stop may arrive later and is dropped against the closed row.
func (h *SessionHandler) Finish(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid session ID",
		})
	}

	var sess models.Session
	if err := database.DB.First(&sess, id).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Session not found",
		})
	}

	if sess.Closed {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Session is already closed",
		})
	}

	if err := h.coa.Disconnect(c.Context(), sess.NasIPAddress, sess.RadiusUsername, sess.SessionID); err != nil {
		// Close it locally anyway; the NAS may have lost the session.
		c.Status(fiber.StatusAccepted)
	}

	err = h.sessions.Stop(c.Context(), session.Record{
		SessionID:      sess.SessionID,
		CustomerID:     sess.CustomerID,
		LeaseID:        sess.IPLeaseID,
		RadiusUsername: sess.RadiusUsername,
		NasIPAddress:   sess.NasIPAddress,
		SessionTime:    sess.SessionDuration,
		Counters: vendors.Counters{
			InputOctets:   sess.InputOctets,
			OutputOctets:  sess.OutputOctets,
			InputPackets:  sess.InputPackets,
			OutputPackets: sess.OutputPackets,
		},
		TerminateCause: "Admin-Reset",
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to close session",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Session finished",
	})
}

// Stats returns open/closed counts and lease occupancy
func (h *SessionHandler) Stats(c *fiber.Ctx) error {
	var open, closed, leases int64
	database.DB.Model(&models.Session{}).Where("closed = ?", false).Count(&open)
	database.DB.Model(&models.Session{}).Where("closed = ?", true).Count(&closed)
	database.DB.Model(&models.Lease{}).Count(&leases)

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"open_sessions":   open,
			"closed_sessions": closed,
			"leases":          leases,
		},
	})
}
