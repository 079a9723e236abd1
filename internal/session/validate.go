package session

import "regexp"

// usernamePattern matches names 3-20 characters long, ASCII letters,
// digits, underscore and hyphen only, disallowing anything that could be
// confused with markup or wire control characters.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)

// ValidateUsername reports whether u is an acceptable self-chosen username.
// It says nothing about availability or reservation; callers must still
// check those against the guest table and accountdb separately.
func ValidateUsername(u string) bool {
	return usernamePattern.MatchString(u)
}
