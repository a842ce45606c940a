package models

import (
	"testing"
	"time"
)

func TestChallengeStatus_Derivation(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Minute)
	later := now.Add(10 * time.Minute)

	tests := []struct {
		name string
		ch   Challenge
		want ChallengeStatus
	}{
		{
			name: "fresh challenge is CREATED",
			ch:   Challenge{MaxAttempts: 5, ExpiresAt: later},
			want: ChallengeCreated,
		},
		{
			name: "past expiry is EXPIRED",
			ch:   Challenge{MaxAttempts: 5, ExpiresAt: earlier},
			want: ChallengeExpired,
		},
		{
			name: "exhausted attempts lock",
			ch:   Challenge{Attempts: 5, MaxAttempts: 5, ExpiresAt: later},
			want: ChallengeLocked,
		},
		{
			name: "lock holds past expiry",
			ch:   Challenge{Attempts: 5, MaxAttempts: 5, ExpiresAt: earlier},
			want: ChallengeLocked,
		},
		{
			name: "verification holds past expiry and exhaustion",
			ch:   Challenge{Attempts: 5, MaxAttempts: 5, ExpiresAt: earlier, VerifiedAt: &earlier},
			want: ChallengeVerified,
		},
		{
			name: "supersession holds past expiry",
			ch:   Challenge{MaxAttempts: 5, ExpiresAt: earlier, SupersededAt: &earlier},
			want: ChallengeSuperseded,
		},
		{
			name: "delivery failure holds past expiry",
			ch:   Challenge{MaxAttempts: 5, ExpiresAt: earlier, DeliveryFailedAt: &earlier},
			want: ChallengeDeliveryFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ch.Status(now)
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
			if live := tt.ch.Live(now); live != (tt.want == ChallengeCreated) {
				t.Fatalf("Live = %v, inconsistent with status %s", live, got)
			}
		})
	}
}
