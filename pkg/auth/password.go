package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// Hashes are self-describing so verification never depends on runtime
// configuration:
//
//	scrypt$N$r$p$<salt-hex>$<digest-hex>
//	pbkdf2_sha256$<iterations>$<salt-hex>$<digest-hex>
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	pbkdf2Rounds = 310000
	saltBytes    = 16
	digestBytes  = 32

	MinPasswordLength = 8
)

var ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

// ValidatePassword enforces the minimum password length.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// HashPassword derives an scrypt hash of the password.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	digest, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, digestBytes)
	if err != nil {
		return "", fmt.Errorf("scrypt: %w", err)
	}
	return fmt.Sprintf("scrypt$%d$%d$%d$%s$%s",
		scryptN, scryptR, scryptP,
		hex.EncodeToString(salt), hex.EncodeToString(digest)), nil
}

// HashPasswordPBKDF2 derives a PBKDF2-HMAC-SHA256 hash. It is the fallback
// KDF for environments where scrypt memory cost is unacceptable;
// CheckPassword accepts both formats.
func HashPasswordPBKDF2(password string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	digest := pbkdf2.Key([]byte(password), salt, pbkdf2Rounds, digestBytes, sha256.New)
	return fmt.Sprintf("pbkdf2_sha256$%d$%s$%s",
		pbkdf2Rounds, hex.EncodeToString(salt), hex.EncodeToString(digest)), nil
}

// CheckPassword verifies a password against a stored self-describing hash.
// The digest comparison is constant-time.
func CheckPassword(password, stored string) bool {
	parts := strings.Split(stored, "$")
	switch parts[0] {
	case "scrypt":
		if len(parts) != 6 {
			return false
		}
		n, err1 := strconv.Atoi(parts[1])
		r, err2 := strconv.Atoi(parts[2])
		p, err3 := strconv.Atoi(parts[3])
		salt, err4 := hex.DecodeString(parts[4])
		want, err5 := hex.DecodeString(parts[5])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || len(want) == 0 {
			return false
		}
		got, err := scrypt.Key([]byte(password), salt, n, r, p, len(want))
		if err != nil {
			return false
		}
		return hmac.Equal(got, want)
	case "pbkdf2_sha256":
		if len(parts) != 4 {
			return false
		}
		rounds, err1 := strconv.Atoi(parts[1])
		salt, err2 := hex.DecodeString(parts[2])
		want, err3 := hex.DecodeString(parts[3])
		if err1 != nil || err2 != nil || err3 != nil || rounds <= 0 || len(want) == 0 {
			return false
		}
		got := pbkdf2.Key([]byte(password), salt, rounds, len(want), sha256.New)
		return hmac.Equal(got, want)
	default:
		return false
	}
}
