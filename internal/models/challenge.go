package models

import (
	"time"

	"github.com/google/uuid"
)

type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelEmail || c == ChannelWhatsApp
}

type Purpose string

const (
	PurposeRegistration  Purpose = "registration"
	PurposeLogin         Purpose = "login"
	PurposePasswordReset Purpose = "password_reset"
	PurposeContactChange Purpose = "contact_change"
)

func (p Purpose) Valid() bool {
	switch p {
	case PurposeRegistration, PurposeLogin, PurposePasswordReset, PurposeContactChange:
		return true
	default:
		return false
	}
}

type ChallengeStatus string

const (
	ChallengeCreated        ChallengeStatus = "CREATED"
	ChallengeVerified       ChallengeStatus = "VERIFIED"
	ChallengeExpired        ChallengeStatus = "EXPIRED"
	ChallengeLocked         ChallengeStatus = "LOCKED"
	ChallengeSuperseded     ChallengeStatus = "SUPERSEDED"
	ChallengeDeliveryFailed ChallengeStatus = "DELIVERY_FAILED"
)

// Challenge is one verification-code lifecycle instance. The plaintext code
// is never stored; only its digest is. Status is derived from the marker
// columns, never persisted as its own column.
type Challenge struct {
	BaseModel
	TenantID          uuid.UUID   `json:"tenantID" gorm:"type:uuid;not null;index:idx_challenges_subject_tuple"`
	SubjectID         uuid.UUID   `json:"subjectID" gorm:"type:uuid;not null;index:idx_challenges_subject_tuple"`
	SubjectType       SubjectType `json:"subjectType" gorm:"type:varchar(20);not null;index:idx_challenges_subject_tuple"`
	Purpose           Purpose     `json:"purpose" gorm:"type:varchar(20);not null;index:idx_challenges_subject_tuple"`
	Channel           Channel     `json:"channel" gorm:"type:varchar(10);not null"`
	CodeDigest        string      `json:"-" gorm:"type:varchar(64);not null"`
	MaskedDestination string      `json:"maskedDestination" gorm:"type:varchar(255);not null"`
	Attempts          int         `json:"attempts" gorm:"not null;default:0"`
	MaxAttempts       int         `json:"maxAttempts" gorm:"not null;default:5"`
	ExpiresAt         time.Time   `json:"expiresAt" gorm:"not null;index"`
	VerifiedAt        *time.Time  `json:"verifiedAt,omitempty"`
	SupersededAt      *time.Time  `json:"-"`
	DeliveryFailedAt  *time.Time  `json:"-"`
	SourceIP          string      `json:"-" gorm:"type:varchar(45)"`
	UserAgent         string      `json:"-" gorm:"type:text"`
}

// Status derives the lifecycle state at the given instant. Terminal markers
// win over expiry so a superseded or verified challenge never flips to
// EXPIRED after the fact, and attempt exhaustion outranks the expiry clock
// for the same reason: a challenge locked before its window closed stays
// LOCKED once the window passes, rather than re-reporting as EXPIRED.
func (c *Challenge) Status(now time.Time) ChallengeStatus {
	switch {
	case c.VerifiedAt != nil:
		return ChallengeVerified
	case c.SupersededAt != nil:
		return ChallengeSuperseded
	case c.DeliveryFailedAt != nil:
		return ChallengeDeliveryFailed
	case c.Attempts >= c.MaxAttempts:
		return ChallengeLocked
	case now.After(c.ExpiresAt):
		return ChallengeExpired
	default:
		return ChallengeCreated
	}
}

// Live reports whether the challenge can still be verified.
func (c *Challenge) Live(now time.Time) bool {
	return c.Status(now) == ChallengeCreated
}

func (Challenge) TableName() string {
	return "challenges"
}
