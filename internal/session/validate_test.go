package session

import "testing"

func TestValidateUsername(t *testing.T) {
	cases := []struct {
		name string
		u    string
		want bool
	}{
		{"plain letters", "alice", true},
		{"letters, digits, underscore, hyphen", "alice_92-x", true},
		{"too short", "ab", false},
		{"too long", "this-name-is-far-too-long-to-allow", false},
		{"disallowed character", "alice!", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidateUsername(tc.u); got != tc.want {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tc.u, got, tc.want)
			}
		})
	}
}
