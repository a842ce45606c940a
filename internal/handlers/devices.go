package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/schedulo/verify/internal/middleware"
	"github.com/schedulo/verify/internal/models"
	"github.com/schedulo/verify/internal/services"
	"github.com/schedulo/verify/pkg/utils"
)

type DevicesHandler struct {
	Trust      *services.DeviceTrustManager
	Challenges *services.ChallengeStore
	Audit      *services.AuditService
}

func NewDevicesHandler(trust *services.DeviceTrustManager, challenges *services.ChallengeStore, audit *services.AuditService) *DevicesHandler {
	return &DevicesHandler{Trust: trust, Challenges: challenges, Audit: audit}
}

type checkDeviceRequest struct {
	SubjectID   string `json:"subjectId"`
	SubjectType string `json:"subjectType"`
}

type trustDeviceRequest struct {
	ChallengeID string `json:"challengeId"`
	Days        int    `json:"days"`
}

// Check answers the login exemption probe: does this device hold an unexpired
// trust grant for the subject? Trust only ever waives login challenges; the
// caller must not consult it for any other purpose.
func (h *DevicesHandler) Check(c *fiber.Ctx) error {
	tenantID := middleware.CurrentTenant(c)

	var req checkDeviceRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	subjectID, ok := parseUUID(req.SubjectID)
	if !ok {
		return utils.Error(c, fiber.StatusBadRequest, "invalid subjectId")
	}
	subjectType := models.SubjectType(req.SubjectType)
	if !subjectType.Valid() {
		return utils.Error(c, fiber.StatusBadRequest, "invalid subjectType")
	}

	trusted, err := h.Trust.IsTrusted(tenantID, subjectID, subjectType, deviceInfoFromCtx(c))
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to check device trust")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"trusted": trusted})
}

// TrustDevice grants a trust exemption for the requesting device. The named
// challenge is the proof of the "remember this device" opt-in: it must exist
// in the tenant and be VERIFIED, and the grant is recorded for its subject.
func (h *DevicesHandler) TrustDevice(c *fiber.Ctx) error {
	tenantID := middleware.CurrentTenant(c)

	var req trustDeviceRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	challengeID, ok := parseUUID(req.ChallengeID)
	if !ok {
		return utils.Error(c, fiber.StatusBadRequest, "invalid challengeId")
	}

	ch, err := h.Challenges.Get(tenantID, challengeID)
	if err != nil {
		if errors.Is(err, services.ErrChallengeNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "INVALID_CHALLENGE")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed to load challenge")
	}

	if ch.Status(h.Trust.Now()) != models.ChallengeVerified {
		return utils.Error(c, fiber.StatusConflict, "CHALLENGE_NOT_VERIFIED")
	}

	device, err := h.Trust.Trust(tenantID, ch.SubjectID, ch.SubjectType, deviceInfoFromCtx(c), req.Days)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to trust device")
	}

	h.Audit.LogAsync(services.AuditEntry{
		TenantID:    tenantID,
		SubjectID:   &ch.SubjectID,
		SubjectType: ch.SubjectType,
		Action:      "device_trusted",
		ChallengeID: &challengeID,
		Details:     map[string]interface{}{"label": device.Label, "expires_at": device.ExpiresAt},
		SourceIP:    c.IP(),
		RequestID:   getRequestID(c),
	})

	return utils.Success(c, fiber.StatusCreated, device)
}

func (h *DevicesHandler) List(c *fiber.Ctx) error {
	tenantID := middleware.CurrentTenant(c)

	subjectID, ok := parseUUID(c.Query("subjectId"))
	if !ok {
		return utils.Error(c, fiber.StatusBadRequest, "invalid subjectId")
	}
	subjectType := models.SubjectType(c.Query("subjectType"))
	if !subjectType.Valid() {
		return utils.Error(c, fiber.StatusBadRequest, "invalid subjectType")
	}

	devices, err := h.Trust.List(tenantID, subjectID, subjectType)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to list devices")
	}

	return utils.Success(c, fiber.StatusOK, devices)
}

func (h *DevicesHandler) Revoke(c *fiber.Ctx) error {
	tenantID := middleware.CurrentTenant(c)

	deviceID, ok := parseUUID(c.Params("id"))
	if !ok {
		return utils.Error(c, fiber.StatusBadRequest, "invalid device id")
	}

	if err := h.Trust.Revoke(tenantID, deviceID); err != nil {
		if errors.Is(err, services.ErrDeviceNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "device not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed to revoke device")
	}

	h.Audit.LogAsync(services.AuditEntry{
		TenantID:  tenantID,
		Action:    "device_revoked",
		Details:   map[string]interface{}{"device_id": deviceID.String()},
		SourceIP:  c.IP(),
		RequestID: getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"revoked": true})
}

func (h *DevicesHandler) RevokeAll(c *fiber.Ctx) error {
	tenantID := middleware.CurrentTenant(c)

	subjectID, ok := parseUUID(c.Query("subjectId"))
	if !ok {
		return utils.Error(c, fiber.StatusBadRequest, "invalid subjectId")
	}
	subjectType := models.SubjectType(c.Query("subjectType"))
	if !subjectType.Valid() {
		return utils.Error(c, fiber.StatusBadRequest, "invalid subjectType")
	}

	count, err := h.Trust.RevokeAll(tenantID, subjectID, subjectType)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to revoke devices")
	}

	h.Audit.LogAsync(services.AuditEntry{
		TenantID:    tenantID,
		SubjectID:   &subjectID,
		SubjectType: subjectType,
		Action:      "devices_revoked_all",
		Details:     map[string]interface{}{"count": count},
		SourceIP:    c.IP(),
		RequestID:   getRequestID(c),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"revoked": count})
}
