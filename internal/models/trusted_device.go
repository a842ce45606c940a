package models

import (
	"time"

	"github.com/google/uuid"
)

// TrustedDevice is a standing exemption from login challenges for a device
// that already passed one. The fingerprint is a keyed digest of stable
// request headers, never raw identifiers. It only ever skips Login
// challenges; other purposes always re-challenge.
type TrustedDevice struct {
	BaseModel
	TenantID          uuid.UUID   `json:"tenantID" gorm:"type:uuid;not null;uniqueIndex:idx_trusted_devices_fingerprint"`
	SubjectID         uuid.UUID   `json:"subjectID" gorm:"type:uuid;not null;uniqueIndex:idx_trusted_devices_fingerprint"`
	SubjectType       SubjectType `json:"subjectType" gorm:"type:varchar(20);not null;uniqueIndex:idx_trusted_devices_fingerprint"`
	DeviceFingerprint string      `json:"-" gorm:"type:varchar(64);not null;uniqueIndex:idx_trusted_devices_fingerprint"`
	Label             string      `json:"label" gorm:"type:varchar(100)"`
	SourceIP          string      `json:"-" gorm:"type:varchar(45)"`
	UserAgent         string      `json:"-" gorm:"type:text"`
	LastUsedAt        time.Time   `json:"lastUsedAt" gorm:"not null"`
	ExpiresAt         time.Time   `json:"expiresAt" gorm:"not null;index"`
}

func (TrustedDevice) TableName() string {
	return "trusted_devices"
}
