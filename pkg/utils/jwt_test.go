package utils

import (
	"testing"

	"github.com/google/uuid"
)

func TestServiceToken_RoundTrip(t *testing.T) {
	ConfigureJWT("test-secret", 1)

	tenantID := uuid.New()
	token, err := GenerateServiceToken(tenantID, "login-flow")
	if err != nil {
		t.Fatalf("failed generating token: %v", err)
	}

	claims, err := ValidateServiceToken(token)
	if err != nil {
		t.Fatalf("failed validating token: %v", err)
	}

	if claims.TenantID != tenantID {
		t.Fatalf("expected tenant %s, got %s", tenantID, claims.TenantID)
	}
	if claims.Caller != "login-flow" {
		t.Fatalf("expected caller login-flow, got %q", claims.Caller)
	}
}

func TestServiceToken_RejectsGarbage(t *testing.T) {
	ConfigureJWT("test-secret", 1)

	if _, err := ValidateServiceToken("not-a-token"); err == nil {
		t.Fatal("expected validation error for malformed token")
	}
}

func TestDigestsEqual(t *testing.T) {
	ConfigureDigest("test-digest-secret")

	a := DigestCode("123456")
	b := DigestCode("123456")
	c := DigestCode("654321")

	if !DigestsEqual(a, b) {
		t.Fatal("expected identical codes to produce equal digests")
	}
	if DigestsEqual(a, c) {
		t.Fatal("expected different codes to produce different digests")
	}
}
