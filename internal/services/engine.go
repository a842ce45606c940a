package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/schedulo/verify/internal/delivery"
	"github.com/schedulo/verify/internal/models"
	"github.com/schedulo/verify/pkg/logger"
	"github.com/schedulo/verify/pkg/utils"
)

// ErrPriorChallengeVerified rejects a resend of a challenge that already
// succeeded; a verified challenge chain is finished.
var ErrPriorChallengeVerified = errors.New("prior challenge already verified")

type IssueStatus string

const (
	IssueOK             IssueStatus = "ISSUED"
	IssueRateLimited    IssueStatus = "RATE_LIMITED"
	IssueDeliveryFailed IssueStatus = "DELIVERY_FAILED"
)

type IssueRequest struct {
	TenantID    uuid.UUID
	SubjectID   uuid.UUID
	SubjectType models.SubjectType
	Channel     models.Channel
	Purpose     models.Purpose
	SourceIP    string
	UserAgent   string
}

type IssueResult struct {
	Status            IssueStatus
	ChallengeID       uuid.UUID
	Channel           models.Channel
	MaskedDestination string
	ExpiresAt         time.Time
	RetryAfter        time.Duration
}

type VerifyStatus string

const (
	VerifyOK              VerifyStatus = "VERIFIED"
	VerifyInvalidCode     VerifyStatus = "INVALID_CODE"
	VerifyInvalidChall    VerifyStatus = "INVALID_CHALLENGE"
	VerifyExpired         VerifyStatus = "EXPIRED"
	VerifyLocked          VerifyStatus = "LOCKED"
	VerifyAlreadyVerified VerifyStatus = "ALREADY_VERIFIED"
)

type VerifyResult struct {
	Status            VerifyStatus
	SubjectID         uuid.UUID
	SubjectType       models.SubjectType
	TenantID          uuid.UUID
	Purpose           models.Purpose
	RemainingAttempts int
	// Locked is set alongside INVALID_CODE when the failed attempt was the
	// last one, so the caller can point the user at a fresh challenge.
	Locked bool
}

// Engine orchestrates issuance, supersession, attempt counting, lockout and
// expiry. All expected outcomes are returned as typed results; only
// infrastructure failures surface as errors.
type Engine struct {
	Store    *ChallengeStore
	Accounts *AccountDirectory
	Throttle *ResendThrottle
	Sender   *delivery.Sender

	CodeTTL     time.Duration
	MaxAttempts int

	// Now is swappable in tests.
	Now func() time.Time
}

func NewEngine(store *ChallengeStore, accounts *AccountDirectory, throttle *ResendThrottle, sender *delivery.Sender, codeTTL time.Duration, maxAttempts int) *Engine {
	return &Engine{
		Store:       store,
		Accounts:    accounts,
		Throttle:    throttle,
		Sender:      sender,
		CodeTTL:     codeTTL,
		MaxAttempts: maxAttempts,
		Now:         time.Now,
	}
}

// Issue runs one issuance cycle: throttle check, supersession of any live
// challenge for the tuple, code generation, persistence, delivery. The
// plaintext code is discarded in memory either way; a failed delivery is
// never retried from storage.
func (e *Engine) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	now := e.Now()

	ok, retryAfter, err := e.Throttle.Allow(req.TenantID, req.SubjectID, req.SubjectType, req.Purpose, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &IssueResult{Status: IssueRateLimited, RetryAfter: retryAfter}, nil
	}

	destination, err := e.Accounts.Destination(req.TenantID, req.SubjectID, req.SubjectType, req.Channel)
	if err != nil {
		return nil, err
	}

	code, digest, err := GenerateCode()
	if err != nil {
		return nil, err
	}

	ch := &models.Challenge{
		TenantID:          req.TenantID,
		SubjectID:         req.SubjectID,
		SubjectType:       req.SubjectType,
		Purpose:           req.Purpose,
		Channel:           req.Channel,
		CodeDigest:        digest,
		MaskedDestination: utils.MaskDestination(destination),
		MaxAttempts:       e.MaxAttempts,
		ExpiresAt:         now.Add(e.CodeTTL),
		SourceIP:          req.SourceIP,
		UserAgent:         req.UserAgent,
	}

	superseded, err := e.Store.CreateSuperseding(ch, now)
	if err != nil {
		return nil, err
	}
	if superseded > 0 {
		logger.InfoWithTenant(req.TenantID.String(), "challenge_superseded", map[string]interface{}{
			"count":   superseded,
			"purpose": string(req.Purpose),
		})
	}

	msg := delivery.RenderMessage(code, req.Purpose, e.CodeTTL)
	if err := e.Sender.Send(ctx, req.Channel, destination, msg); err != nil {
		logger.ErrorWithTenant(req.TenantID.String(), "challenge_delivery_failed", err, map[string]interface{}{
			"challenge_id": ch.ID.String(),
			"channel":      string(req.Channel),
		})
		if markErr := e.Store.MarkDeliveryFailed(req.TenantID, ch.ID, e.Now()); markErr != nil {
			return nil, markErr
		}
		return &IssueResult{Status: IssueDeliveryFailed, ChallengeID: ch.ID, Channel: req.Channel}, nil
	}

	return &IssueResult{
		Status:            IssueOK,
		ChallengeID:       ch.ID,
		Channel:           req.Channel,
		MaskedDestination: ch.MaskedDestination,
		ExpiresAt:         ch.ExpiresAt,
	}, nil
}

// Verify evaluates one code submission against the challenge state machine.
// Expiry is evaluated lazily here; no background job is needed for
// correctness.
func (e *Engine) Verify(tenantID, challengeID uuid.UUID, submittedCode string) (*VerifyResult, error) {
	now := e.Now()

	ch, err := e.Store.Get(tenantID, challengeID)
	if err != nil {
		if errors.Is(err, ErrChallengeNotFound) {
			return &VerifyResult{Status: VerifyInvalidChall}, nil
		}
		return nil, err
	}

	switch ch.Status(now) {
	case models.ChallengeVerified:
		return &VerifyResult{Status: VerifyAlreadyVerified}, nil
	case models.ChallengeSuperseded, models.ChallengeDeliveryFailed, models.ChallengeExpired:
		// A superseded or undelivered challenge is indistinguishable from an
		// expired one to the caller; all three need a fresh issuance.
		return &VerifyResult{Status: VerifyExpired}, nil
	case models.ChallengeLocked:
		return &VerifyResult{Status: VerifyLocked}, nil
	}

	if !utils.DigestsEqual(utils.DigestCode(submittedCode), ch.CodeDigest) {
		updated, bumped, err := e.Store.IncrementAttempt(tenantID, challengeID)
		if err != nil {
			return nil, err
		}
		if !bumped {
			// Concurrent submissions already exhausted the attempts.
			return &VerifyResult{Status: VerifyLocked}, nil
		}

		remaining := updated.MaxAttempts - updated.Attempts
		return &VerifyResult{
			Status:            VerifyInvalidCode,
			RemainingAttempts: remaining,
			Locked:            remaining == 0,
		}, nil
	}

	verified, claimed, err := e.Store.MarkVerified(tenantID, challengeID, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		switch verified.Status(e.Now()) {
		case models.ChallengeVerified:
			return &VerifyResult{Status: VerifyAlreadyVerified}, nil
		case models.ChallengeLocked:
			return &VerifyResult{Status: VerifyLocked}, nil
		default:
			return &VerifyResult{Status: VerifyExpired}, nil
		}
	}

	return &VerifyResult{
		Status:      VerifyOK,
		SubjectID:   verified.SubjectID,
		SubjectType: verified.SubjectType,
		TenantID:    verified.TenantID,
		Purpose:     verified.Purpose,
	}, nil
}

// Resend recovers the subject tuple and channel from a prior challenge and
// delegates to Issue. The throttle key is the subject+purpose tuple, so
// calling Issue directly instead of Resend gains nothing.
func (e *Engine) Resend(ctx context.Context, tenantID, previousChallengeID uuid.UUID, sourceIP, userAgent string) (*IssueResult, error) {
	prev, err := e.Store.Get(tenantID, previousChallengeID)
	if err != nil {
		return nil, err
	}

	if prev.VerifiedAt != nil {
		return nil, ErrPriorChallengeVerified
	}

	return e.Issue(ctx, IssueRequest{
		TenantID:    prev.TenantID,
		SubjectID:   prev.SubjectID,
		SubjectType: prev.SubjectType,
		Channel:     prev.Channel,
		Purpose:     prev.Purpose,
		SourceIP:    sourceIP,
		UserAgent:   userAgent,
	})
}
