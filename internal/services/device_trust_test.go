package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/schedulo/verify/internal/models"
)

func newTrustFixture(t *testing.T) (*DeviceTrustManager, *engineFixture) {
	t.Helper()

	f := newEngineFixture(t)
	trust := NewDeviceTrustManager(f.db, 30, 180)
	trust.Now = func() time.Time { return f.now }
	return trust, f
}

var testDevice = DeviceInfo{
	UserAgent:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0)",
	Accept:         "application/json",
	AcceptLanguage: "en-GB",
	SourceIP:       "203.0.113.10",
}

func TestDeviceTrust_GrantLifecycle(t *testing.T) {
	trust, f := newTrustFixture(t)
	tenantID := uuid.New()
	subjectID := uuid.New()

	trusted, err := trust.IsTrusted(tenantID, subjectID, models.SubjectCustomer, testDevice)
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if trusted {
		t.Fatal("expected no trust before a grant")
	}

	td, err := trust.Trust(tenantID, subjectID, models.SubjectCustomer, testDevice, 0)
	if err != nil {
		t.Fatalf("Trust failed: %v", err)
	}
	if td.Label != "iPhone" {
		t.Fatalf("expected label iPhone, got %q", td.Label)
	}
	if got := td.ExpiresAt.Sub(f.now); got != 30*24*time.Hour {
		t.Fatalf("expected default 30-day grant, got %v", got)
	}

	trusted, err = trust.IsTrusted(tenantID, subjectID, models.SubjectCustomer, testDevice)
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if !trusted {
		t.Fatal("expected trust after the grant")
	}

	// A different browser profile produces a different fingerprint.
	other := testDevice
	other.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64)"
	trusted, err = trust.IsTrusted(tenantID, subjectID, models.SubjectCustomer, other)
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if trusted {
		t.Fatal("a different device must not be trusted")
	}
}

func TestDeviceTrust_ExpiredGrantIsNotTrusted(t *testing.T) {
	trust, f := newTrustFixture(t)
	tenantID := uuid.New()
	subjectID := uuid.New()

	if _, err := trust.Trust(tenantID, subjectID, models.SubjectCustomer, testDevice, 7); err != nil {
		t.Fatalf("Trust failed: %v", err)
	}

	f.advance(8 * 24 * time.Hour)

	trusted, err := trust.IsTrusted(tenantID, subjectID, models.SubjectCustomer, testDevice)
	if err != nil {
		t.Fatalf("IsTrusted failed: %v", err)
	}
	if trusted {
		t.Fatal("expected the grant to have lapsed")
	}
}

func TestDeviceTrust_UseSlidesExpiryUpToCap(t *testing.T) {
	trust, f := newTrustFixture(t)
	tenantID := uuid.New()
	subjectID := uuid.New()

	td, err := trust.Trust(tenantID, subjectID, models.SubjectCustomer, testDevice, 30)
	if err != nil {
		t.Fatalf("Trust failed: %v", err)
	}
	granted := f.now

	f.advance(20 * 24 * time.Hour)
	if trusted, err := trust.IsTrusted(tenantID, subjectID, models.SubjectCustomer, testDevice); err != nil || !trusted {
		t.Fatalf("expected trust at day 20: trusted=%v err=%v", trusted, err)
	}

	var refreshed models.TrustedDevice
	if err := f.db.First(&refreshed, "id = ?", td.ID).Error; err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got := refreshed.ExpiresAt.Sub(granted); got != 50*24*time.Hour {
		t.Fatalf("expected expiry slid to day 50, got day %v", got.Hours()/24)
	}
	if delta := refreshed.LastUsedAt.Sub(f.now); delta < -time.Second || delta > time.Second {
		t.Fatalf("expected last_used_at refreshed to %v, got %v", f.now, refreshed.LastUsedAt)
	}
}

func TestDeviceTrust_RegrantRefreshesExistingRow(t *testing.T) {
	trust, f := newTrustFixture(t)
	tenantID := uuid.New()
	subjectID := uuid.New()

	first, err := trust.Trust(tenantID, subjectID, models.SubjectCustomer, testDevice, 10)
	if err != nil {
		t.Fatalf("Trust failed: %v", err)
	}

	f.advance(24 * time.Hour)
	second, err := trust.Trust(tenantID, subjectID, models.SubjectCustomer, testDevice, 10)
	if err != nil {
		t.Fatalf("re-Trust failed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("regrant must refresh the existing row, not insert a duplicate")
	}

	var count int64
	f.db.Model(&models.TrustedDevice{}).Where("tenant_id = ?", tenantID).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single grant row, got %d", count)
	}
}

func TestDeviceTrust_RevokeAndRevokeAll(t *testing.T) {
	trust, _ := newTrustFixture(t)
	tenantID := uuid.New()
	subjectID := uuid.New()

	td, err := trust.Trust(tenantID, subjectID, models.SubjectCustomer, testDevice, 30)
	if err != nil {
		t.Fatalf("Trust failed: %v", err)
	}

	if err := trust.Revoke(uuid.New(), td.ID); err != ErrDeviceNotFound {
		t.Fatalf("expected cross-tenant revoke to miss, got %v", err)
	}
	if err := trust.Revoke(tenantID, td.ID); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if err := trust.Revoke(tenantID, td.ID); err != ErrDeviceNotFound {
		t.Fatalf("expected second revoke to miss, got %v", err)
	}

	other := testDevice
	other.UserAgent = "Mozilla/5.0 (X11; Linux x86_64)"
	if _, err := trust.Trust(tenantID, subjectID, models.SubjectCustomer, testDevice, 30); err != nil {
		t.Fatalf("Trust failed: %v", err)
	}
	if _, err := trust.Trust(tenantID, subjectID, models.SubjectCustomer, other, 30); err != nil {
		t.Fatalf("Trust failed: %v", err)
	}

	count, err := trust.RevokeAll(tenantID, subjectID, models.SubjectCustomer)
	if err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 revoked grants, got %d", count)
	}
}
