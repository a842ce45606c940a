package services

import (
	"time"

	"github.com/google/uuid"
	"github.com/schedulo/verify/internal/models"
)

// ResendThrottle enforces a minimum interval between issuances for the same
// subject+purpose chain. It is stateless beyond reading the newest
// challenge's created_at, and it gates Issue itself, not just the resend
// path, so dropping a challenge id gives no way around the cool-down.
type ResendThrottle struct {
	Store    *ChallengeStore
	Cooldown time.Duration
}

func NewResendThrottle(store *ChallengeStore, cooldown time.Duration) *ResendThrottle {
	return &ResendThrottle{Store: store, Cooldown: cooldown}
}

func (t *ResendThrottle) Allow(tenantID, subjectID uuid.UUID, subjectType models.SubjectType, purpose models.Purpose, now time.Time) (ok bool, retryAfter time.Duration, err error) {
	newest, err := t.Store.FindNewest(tenantID, subjectID, subjectType, purpose)
	if err != nil {
		return false, 0, err
	}
	if newest == nil {
		return true, 0, nil
	}

	elapsed := now.Sub(newest.CreatedAt)
	if elapsed < t.Cooldown {
		return false, t.Cooldown - elapsed, nil
	}
	return true, 0, nil
}
