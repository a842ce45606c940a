package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/schedulo/verify/internal/middleware"
	"github.com/schedulo/verify/internal/models"
	"github.com/schedulo/verify/internal/services"
	"github.com/schedulo/verify/pkg/utils"
)

type ChallengesHandler struct {
	Engine *services.Engine
	Audit  *services.AuditService
}

func NewChallengesHandler(engine *services.Engine, audit *services.AuditService) *ChallengesHandler {
	return &ChallengesHandler{Engine: engine, Audit: audit}
}

type issueRequest struct {
	SubjectID   string `json:"subjectId"`
	SubjectType string `json:"subjectType"`
	Channel     string `json:"channel"`
	Purpose     string `json:"purpose"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

// Issue creates a fresh challenge for the subject tuple, superseding any live
// one, and delivers the code over the requested channel.
func (h *ChallengesHandler) Issue(c *fiber.Ctx) error {
	tenantID := middleware.CurrentTenant(c)

	var req issueRequest
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
	channel := models.Channel(req.Channel)
	if !channel.Valid() {
		return utils.Error(c, fiber.StatusBadRequest, "invalid channel")
	}
	purpose := models.Purpose(req.Purpose)
	if !purpose.Valid() {
		return utils.Error(c, fiber.StatusBadRequest, "invalid purpose")
	}

	result, err := h.Engine.Issue(c.Context(), services.IssueRequest{
		TenantID:    tenantID,
		SubjectID:   subjectID,
		SubjectType: subjectType,
		Channel:     channel,
		Purpose:     purpose,
		SourceIP:    c.IP(),
		UserAgent:   c.Get("User-Agent"),
	})
	if err != nil {
		return h.issueError(c, err)
	}

	return h.respondIssue(c, result, subjectID, subjectType)
}

// Resend recovers the subject tuple from a prior challenge and issues a fresh
// one over the same channel. A verified prior challenge cannot be resent.
func (h *ChallengesHandler) Resend(c *fiber.Ctx) error {
	tenantID := middleware.CurrentTenant(c)

	challengeID, ok := parseUUID(c.Params("id"))
	if !ok {
		return utils.Error(c, fiber.StatusBadRequest, "invalid challenge id")
	}

	result, err := h.Engine.Resend(c.Context(), tenantID, challengeID, c.IP(), c.Get("User-Agent"))
	if err != nil {
		if errors.Is(err, services.ErrChallengeNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "INVALID_CHALLENGE")
		}
		if errors.Is(err, services.ErrPriorChallengeVerified) {
			return utils.Error(c, fiber.StatusConflict, "ALREADY_VERIFIED")
		}
		return h.issueError(c, err)
	}

	return h.respondIssue(c, result, uuid.Nil, "")
}

// Verify checks a submitted code against the challenge and returns a typed
// outcome. All lifecycle answers are 4xx with a stable error code; only
// infrastructure failures are 500s.
func (h *ChallengesHandler) Verify(c *fiber.Ctx) error {
	tenantID := middleware.CurrentTenant(c)

	challengeID, ok := parseUUID(c.Params("id"))
	if !ok {
		return utils.Error(c, fiber.StatusBadRequest, "invalid challenge id")
	}

	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Code == "" {
		return utils.Error(c, fiber.StatusBadRequest, "code is required")
	}

	result, err := h.Engine.Verify(tenantID, challengeID, req.Code)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed to verify challenge")
	}

	switch result.Status {
	case services.VerifyOK:
		h.Audit.LogAsync(services.AuditEntry{
			TenantID:    tenantID,
			SubjectID:   &result.SubjectID,
			SubjectType: result.SubjectType,
			Action:      "challenge_verified",
			ChallengeID: &challengeID,
			Details:     map[string]interface{}{"purpose": string(result.Purpose)},
			SourceIP:    c.IP(),
			RequestID:   getRequestID(c),
		})
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"status":      string(services.VerifyOK),
			"subjectId":   result.SubjectID,
			"subjectType": result.SubjectType,
			"tenantId":    result.TenantID,
			"purpose":     result.Purpose,
		})

	case services.VerifyInvalidCode:
		if result.Locked {
			h.Audit.LogAsync(services.AuditEntry{
				TenantID:    tenantID,
				Action:      "challenge_locked",
				ChallengeID: &challengeID,
				SourceIP:    c.IP(),
				RequestID:   getRequestID(c),
			})
		}
		return utils.ErrorWithData(c, fiber.StatusBadRequest, "INVALID_CODE", fiber.Map{
			"remainingAttempts": result.RemainingAttempts,
			"locked":            result.Locked,
		})

	case services.VerifyLocked:
		return utils.Error(c, fiber.StatusLocked, "LOCKED")

	case services.VerifyExpired:
		return utils.Error(c, fiber.StatusGone, "EXPIRED")

	case services.VerifyAlreadyVerified:
		return utils.Error(c, fiber.StatusConflict, "ALREADY_VERIFIED")

	default:
		return utils.Error(c, fiber.StatusNotFound, "INVALID_CHALLENGE")
	}
}

func (h *ChallengesHandler) respondIssue(c *fiber.Ctx, result *services.IssueResult, subjectID uuid.UUID, subjectType models.SubjectType) error {
	tenantID := middleware.CurrentTenant(c)

	switch result.Status {
	case services.IssueRateLimited:
		return utils.ErrorWithData(c, fiber.StatusTooManyRequests, "RATE_LIMITED", fiber.Map{
			"retryAfterSeconds": int(result.RetryAfter.Round(time.Second).Seconds()),
		})

	case services.IssueDeliveryFailed:
		h.Audit.LogAsync(services.AuditEntry{
			TenantID:    tenantID,
			Action:      "challenge_delivery_failed",
			ChallengeID: &result.ChallengeID,
			Details:     map[string]interface{}{"channel": string(result.Channel)},
			SourceIP:    c.IP(),
			RequestID:   getRequestID(c),
		})
		return utils.Error(c, fiber.StatusBadGateway, "DELIVERY_FAILED")
	}

	entry := services.AuditEntry{
		TenantID:    tenantID,
		SubjectType: subjectType,
		Action:      "challenge_issued",
		ChallengeID: &result.ChallengeID,
		Details:     map[string]interface{}{"channel": string(result.Channel)},
		SourceIP:    c.IP(),
		RequestID:   getRequestID(c),
	}
	if subjectID != uuid.Nil {
		entry.SubjectID = &subjectID
	}
	h.Audit.LogAsync(entry)

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"challengeId":       result.ChallengeID,
		"channel":           result.Channel,
		"maskedDestination": result.MaskedDestination,
		"expiresAt":         result.ExpiresAt,
	})
}

func (h *ChallengesHandler) issueError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrUnknownSubject):
		return utils.Error(c, fiber.StatusUnprocessableEntity, "UNKNOWN_SUBJECT")
	case errors.Is(err, services.ErrNoDestination):
		return utils.Error(c, fiber.StatusUnprocessableEntity, "NO_DESTINATION")
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "failed to issue challenge")
	}
}
