package app

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers both unknown usernames and wrong
	// passwords so responses cannot be used for account enumeration.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidInviteCode is returned when the beta invite code does not
	// match the configured hash (or none is configured).
	ErrInvalidInviteCode = errors.New("invalid invite code")

	ErrUsernameTaken   = errors.New("username already taken")
	ErrInvalidUsername = errors.New("username must be 3-24 characters: lowercase letters, digits, underscore")

	// ErrTooManyAttempts is returned once an IP exceeds the auth failure
	// threshold inside the window.
	ErrTooManyAttempts = errors.New("too many failed attempts, try again later")

	// ErrUnauthenticated covers missing, expired and revoked sessions.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNotFound is returned for missing resources and for resources
	// owned by someone else; callers cannot tell the two apart.
	ErrNotFound = errors.New("not found")

	// ErrUpstream wraps LLM/feed failures without exposing their text.
	ErrUpstream = errors.New("upstream service failed")

	// ErrRefreshCooldown marks starter refreshes inside the cooldown.
	ErrRefreshCooldown = errors.New("refresh cooldown active")
)

// CooldownError carries the remaining wait time for a refresh attempt
// rejected by the cooldown gate. errors.Is(err, ErrRefreshCooldown) holds.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("refresh cooldown active, retry in %s", e.Remaining.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrRefreshCooldown
}

// ValidationError reports a client input problem on a named field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
