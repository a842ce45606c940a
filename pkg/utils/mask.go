package utils

import "strings"

// MaskDestination produces the display-safe form of a phone number or email
// address. Phone numbers keep only the last 4 digits; emails keep the first 2
// and last 1 characters of the local part with the domain shown in full.
// The unmasked destination must never leave this package's callers.
func MaskDestination(destination string) string {
	if strings.Contains(destination, "@") {
		return maskEmail(destination)
	}
	return maskPhone(destination)
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	local, domain := email[:at], email[at:]
	if len(local) <= 3 {
		return strings.Repeat("*", len(local)) + domain
	}
	return local[:2] + "****" + local[len(local)-1:] + domain
}
