package auth

import (
	"strings"
	"testing"
)

func TestHashPasswordAndCheckPasswordScrypt(t *testing.T) {
	hash, err := HashPassword("s3cret-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !strings.HasPrefix(hash, "scrypt$") {
		t.Fatalf("expected scrypt tag, got %q", hash)
	}
	if !CheckPassword("s3cret-password", hash) {
		t.Fatalf("expected scrypt password check to pass")
	}
	if CheckPassword("wrong-password", hash) {
		t.Fatalf("expected scrypt password check to fail")
	}
}

func TestHashPasswordAndCheckPasswordPBKDF2(t *testing.T) {
	hash, err := HashPasswordPBKDF2("s3cret-password")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !strings.HasPrefix(hash, "pbkdf2_sha256$") {
		t.Fatalf("expected pbkdf2 tag, got %q", hash)
	}
	if !CheckPassword("s3cret-password", hash) {
		t.Fatalf("expected pbkdf2 password check to pass")
	}
	if CheckPassword("wrong-password", hash) {
		t.Fatalf("expected pbkdf2 password check to fail")
	}
}

func TestCheckPasswordRejectsMalformedHashes(t *testing.T) {
	for _, stored := range []string{
		"",
		"plaintext",
		"bcrypt$whatever",
		"scrypt$x$8$1$00$00",
		"scrypt$32768$8$1$zz$00",
		"pbkdf2_sha256$0$00$00",
		"pbkdf2_sha256$310000$00",
	} {
		if CheckPassword("anything", stored) {
			t.Fatalf("expected check to fail for stored hash %q", stored)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("supersecure1"); err != nil {
		t.Fatalf("expected valid password, got: %v", err)
	}
	if err := ValidatePassword("short"); err == nil {
		t.Fatalf("expected short password to fail")
	}
}

func TestInviteCodeHashing(t *testing.T) {
	stored := HashInviteCode("beta-secret")
	if !strings.HasPrefix(stored, "sha256$") {
		t.Fatalf("expected sha256 tag, got %q", stored)
	}
	if !CheckInviteCode("beta-secret", stored) {
		t.Fatalf("expected invite code to match")
	}
	if !CheckInviteCode("  beta-secret ", stored) {
		t.Fatalf("expected invite code to match after trimming")
	}
	if CheckInviteCode("wrong-code", stored) {
		t.Fatalf("expected wrong invite code to fail")
	}
	if CheckInviteCode("beta-secret", "") {
		t.Fatalf("expected unconfigured invite code to fail")
	}
}

func TestSessionTokenHashing(t *testing.T) {
	tok, err := NewSessionToken()
	if err != nil {
		t.Fatalf("new session token: %v", err)
	}
	other, err := NewSessionToken()
	if err != nil {
		t.Fatalf("new session token: %v", err)
	}
	if tok == other {
		t.Fatalf("expected unique tokens")
	}
	if HashToken(tok) != HashToken(tok) {
		t.Fatalf("expected stable token hash")
	}
	if HashToken(tok) == tok {
		t.Fatalf("expected hash to differ from raw token")
	}
}
