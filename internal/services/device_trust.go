package services

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schedulo/verify/internal/models"
	"github.com/schedulo/verify/pkg/utils"
	"gorm.io/gorm"
)

var ErrDeviceNotFound = errors.New("trusted device not found")

// DeviceInfo carries the stable request characteristics a fingerprint is
// derived from. Nothing in here is persisted raw except the last-seen IP
// and user agent, which are display metadata only.
type DeviceInfo struct {
	UserAgent      string
	Accept         string
	AcceptLanguage string
	SourceIP       string
}

// Fingerprint is deterministic for the same browser across requests. It is
// a convenience identifier, not an identity check: a false positive only
// skips a login challenge, never any other purpose.
func (d DeviceInfo) Fingerprint() string {
	return utils.FingerprintDevice(d.UserAgent, d.Accept, d.AcceptLanguage)
}

// DeviceTrustManager answers "may this login skip a challenge?" and manages
// the standing grants behind that answer.
type DeviceTrustManager struct {
	DB           *gorm.DB
	GrantDays    int
	MaxGrantDays int

	Now func() time.Time
}

func NewDeviceTrustManager(db *gorm.DB, grantDays, maxGrantDays int) *DeviceTrustManager {
	return &DeviceTrustManager{
		DB:           db,
		GrantDays:    grantDays,
		MaxGrantDays: maxGrantDays,
		Now:          time.Now,
	}
}

// IsTrusted reports whether the device holds an unexpired grant for the
// subject. A true result refreshes last_used_at and slides the expiry
// forward, capped at MaxGrantDays past the original grant.
func (m *DeviceTrustManager) IsTrusted(tenantID, subjectID uuid.UUID, subjectType models.SubjectType, device DeviceInfo) (bool, error) {
	now := m.Now()

	var td models.TrustedDevice
	err := m.DB.First(&td,
		"tenant_id = ? AND subject_id = ? AND subject_type = ? AND device_fingerprint = ? AND expires_at > ?",
		tenantID, subjectID, subjectType, device.Fingerprint(), now).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	refreshed := now.Add(time.Duration(m.GrantDays) * 24 * time.Hour)
	cap := td.CreatedAt.Add(time.Duration(m.MaxGrantDays) * 24 * time.Hour)
	if refreshed.After(cap) {
		refreshed = cap
	}
	if refreshed.Before(td.ExpiresAt) {
		refreshed = td.ExpiresAt
	}

	updates := map[string]interface{}{
		"last_used_at": now,
		"expires_at":   refreshed,
		"source_ip":    device.SourceIP,
		"user_agent":   device.UserAgent,
	}
	if err := m.DB.Model(&td).Updates(updates).Error; err != nil {
		return false, err
	}

	return true, nil
}

// Trust records (or refreshes) a grant for the device. Callers must only
// invoke this after a successful verification where the account owner opted
// in to remembering the device.
func (m *DeviceTrustManager) Trust(tenantID, subjectID uuid.UUID, subjectType models.SubjectType, device DeviceInfo, days int) (*models.TrustedDevice, error) {
	now := m.Now()

	if days <= 0 {
		days = m.GrantDays
	}
	if days > m.MaxGrantDays {
		days = m.MaxGrantDays
	}
	expiresAt := now.Add(time.Duration(days) * 24 * time.Hour)
	fingerprint := device.Fingerprint()

	var existing models.TrustedDevice
	err := m.DB.First(&existing,
		"tenant_id = ? AND subject_id = ? AND subject_type = ? AND device_fingerprint = ?",
		tenantID, subjectID, subjectType, fingerprint).Error
	if err == nil {
		updates := map[string]interface{}{
			"last_used_at": now,
			"expires_at":   expiresAt,
			"source_ip":    device.SourceIP,
			"user_agent":   device.UserAgent,
			"label":        guessDeviceLabel(device.UserAgent),
		}
		if err := m.DB.Model(&existing).Updates(updates).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	td := models.TrustedDevice{
		TenantID:          tenantID,
		SubjectID:         subjectID,
		SubjectType:       subjectType,
		DeviceFingerprint: fingerprint,
		Label:             guessDeviceLabel(device.UserAgent),
		SourceIP:          device.SourceIP,
		UserAgent:         device.UserAgent,
		LastUsedAt:        now,
		ExpiresAt:         expiresAt,
	}
	if err := m.DB.Create(&td).Error; err != nil {
		return nil, err
	}
	return &td, nil
}

func (m *DeviceTrustManager) List(tenantID, subjectID uuid.UUID, subjectType models.SubjectType) ([]models.TrustedDevice, error) {
	var devices []models.TrustedDevice
	err := m.DB.
		Where("tenant_id = ? AND subject_id = ? AND subject_type = ? AND expires_at > ?",
			tenantID, subjectID, subjectType, m.Now()).
		Order("last_used_at DESC").
		Find(&devices).Error
	return devices, err
}

func (m *DeviceTrustManager) Revoke(tenantID, id uuid.UUID) error {
	res := m.DB.Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&models.TrustedDevice{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (m *DeviceTrustManager) RevokeAll(tenantID, subjectID uuid.UUID, subjectType models.SubjectType) (int64, error) {
	res := m.DB.
		Where("tenant_id = ? AND subject_id = ? AND subject_type = ?", tenantID, subjectID, subjectType).
		Delete(&models.TrustedDevice{})
	return res.RowsAffected, res.Error
}

// guessDeviceLabel produces a display-only hint from the user agent. It is
// never consulted for trust decisions.
func guessDeviceLabel(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "iphone"):
		return "iPhone"
	case strings.Contains(ua, "ipad"):
		return "iPad"
	case strings.Contains(ua, "android"):
		return "Android device"
	case strings.Contains(ua, "windows"):
		return "Windows computer"
	case strings.Contains(ua, "macintosh"), strings.Contains(ua, "mac os"):
		return "Mac"
	case strings.Contains(ua, "linux"):
		return "Linux computer"
	default:
		return "Unknown device"
	}
}
