package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const inviteHashPrefix = "sha256$"

// HashInviteCode returns the stored form of an invite code.
func HashInviteCode(code string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(code)))
	return inviteHashPrefix + hex.EncodeToString(sum[:])
}

// CheckInviteCode verifies a plaintext invite code against the stored hash
// in constant time. An empty stored hash never matches: registration stays
// closed until an operator configures a code.
func CheckInviteCode(code, stored string) bool {
	if stored == "" {
		return false
	}
	return hmac.Equal([]byte(HashInviteCode(code)), []byte(stored))
}
