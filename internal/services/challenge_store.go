package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/schedulo/verify/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrChallengeNotFound covers both unknown ids and tenant mismatches so
	// callers cannot probe which ids exist in other tenants.
	ErrChallengeNotFound = errors.New("challenge not found")
)

// ChallengeStore is the durable record of verification attempts. Every
// operation is tenant-scoped; nothing here can touch another tenant's rows
// even with a guessed id.
type ChallengeStore struct {
	DB *gorm.DB
}

func NewChallengeStore(db *gorm.DB) *ChallengeStore {
	return &ChallengeStore{DB: db}
}

func (s *ChallengeStore) Get(tenantID, id uuid.UUID) (*models.Challenge, error) {
	var ch models.Challenge
	err := s.DB.First(&ch, "id = ? AND tenant_id = ?", id, tenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, err
	}
	return &ch, nil
}

// FindNewest returns the most recently created challenge for the subject
// tuple regardless of state, or nil when none exists. The resend throttle
// reads its created_at so no second source of truth is needed.
func (s *ChallengeStore) FindNewest(tenantID, subjectID uuid.UUID, subjectType models.SubjectType, purpose models.Purpose) (*models.Challenge, error) {
	var ch models.Challenge
	err := s.DB.
		Where("tenant_id = ? AND subject_id = ? AND subject_type = ? AND purpose = ?",
			tenantID, subjectID, subjectType, purpose).
		Order("created_at DESC").
		First(&ch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ch, nil
}

// FindLive returns the single live challenge for the subject tuple, or nil.
func (s *ChallengeStore) FindLive(tenantID, subjectID uuid.UUID, subjectType models.SubjectType, purpose models.Purpose, now time.Time) (*models.Challenge, error) {
	var ch models.Challenge
	err := s.liveScope(tenantID, subjectID, subjectType, purpose, now).
		Order("created_at DESC").
		First(&ch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ch, nil
}

// CreateSuperseding marks every live challenge for the new challenge's
// subject tuple SUPERSEDED and inserts the new one inside a single
// transaction, so no window exists where two live challenges coexist.
// Concurrent issuances for the same tuple are serialized with a
// transaction-scoped advisory lock: under READ COMMITTED the supersede
// UPDATE cannot see a row the other transaction is still inserting, and a
// row lock cannot cover the case where no live row exists yet, so without
// the lock two racing inserts would both leave a live challenge.
func (s *ChallengeStore) CreateSuperseding(ch *models.Challenge, now time.Time) (superseded int64, err error) {
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := lockSubjectTuple(tx, ch.TenantID, ch.SubjectID, ch.SubjectType, ch.Purpose); err != nil {
			return err
		}

		res := s.liveScopeTx(tx, ch.TenantID, ch.SubjectID, ch.SubjectType, ch.Purpose, now).
			Update("superseded_at", now)
		if res.Error != nil {
			return res.Error
		}
		superseded = res.RowsAffected

		return tx.Create(ch).Error
	})
	return superseded, err
}

// lockSubjectTuple takes a pg_advisory_xact_lock keyed on the subject tuple,
// released automatically at commit or rollback. SQLite allows a single
// writer at a time, so issuances are already serialized there.
func lockSubjectTuple(tx *gorm.DB, tenantID, subjectID uuid.UUID, subjectType models.SubjectType, purpose models.Purpose) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}

	key := fmt.Sprintf("challenge:%s:%s:%s:%s", tenantID, subjectID, subjectType, purpose)
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error
}

// IncrementAttempt bumps the attempt counter with a guarded single UPDATE so
// concurrent submissions cannot push attempts past max_attempts. It returns
// the reloaded challenge; bumped is false when the row was already at the
// limit (or terminal) and nothing changed.
func (s *ChallengeStore) IncrementAttempt(tenantID, id uuid.UUID) (ch *models.Challenge, bumped bool, err error) {
	res := s.DB.Model(&models.Challenge{}).
		Where("id = ? AND tenant_id = ? AND attempts < max_attempts AND verified_at IS NULL", id, tenantID).
		Update("attempts", gorm.Expr("attempts + 1"))
	if res.Error != nil {
		return nil, false, res.Error
	}

	ch, err = s.Get(tenantID, id)
	if err != nil {
		return nil, false, err
	}
	return ch, res.RowsAffected > 0, nil
}

// MarkVerified sets verified_at once. When a concurrent call already won the
// race, claimed is false and the caller should treat the challenge as
// already verified.
func (s *ChallengeStore) MarkVerified(tenantID, id uuid.UUID, now time.Time) (ch *models.Challenge, claimed bool, err error) {
	res := s.DB.Model(&models.Challenge{}).
		Where("id = ? AND tenant_id = ? AND verified_at IS NULL AND superseded_at IS NULL AND attempts < max_attempts",
			id, tenantID).
		Update("verified_at", now)
	if res.Error != nil {
		return nil, false, res.Error
	}

	ch, err = s.Get(tenantID, id)
	if err != nil {
		return nil, false, err
	}
	return ch, res.RowsAffected > 0, nil
}

// MarkDeliveryFailed retires a challenge whose code never reached the
// destination. The code is never re-sent from storage; resending always
// generates a fresh challenge.
func (s *ChallengeStore) MarkDeliveryFailed(tenantID, id uuid.UUID, now time.Time) error {
	return s.DB.Model(&models.Challenge{}).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Update("delivery_failed_at", now).Error
}

func (s *ChallengeStore) liveScope(tenantID, subjectID uuid.UUID, subjectType models.SubjectType, purpose models.Purpose, now time.Time) *gorm.DB {
	return s.liveScopeTx(s.DB, tenantID, subjectID, subjectType, purpose, now)
}

func (s *ChallengeStore) liveScopeTx(tx *gorm.DB, tenantID, subjectID uuid.UUID, subjectType models.SubjectType, purpose models.Purpose, now time.Time) *gorm.DB {
	return tx.Model(&models.Challenge{}).
		Where("tenant_id = ? AND subject_id = ? AND subject_type = ? AND purpose = ?",
			tenantID, subjectID, subjectType, purpose).
		Where("verified_at IS NULL AND superseded_at IS NULL AND delivery_failed_at IS NULL").
		Where("attempts < max_attempts").
		Where("expires_at > ?", now)
}
