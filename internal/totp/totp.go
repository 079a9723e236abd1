// Package totp implements RFC 6238 time-based one-time passwords for
// two-factor account login and their otpauth:// QR provisioning. The
// HOTP/TOTP algorithm is built directly on crypto/hmac and crypto/sha1 per
// RFC 4226/6238; QR rendering reuses the go-qrcode dependency.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// SecretLength is the byte length of a freshly generated TOTP secret (160
// bits, RFC 4226's recommended minimum for HMAC-SHA1).
const SecretLength = 20

// Period is the RFC 6238 default time step.
const Period = 30 * time.Second

// Digits is the number of decimal digits in a generated code.
const Digits = 6

// GenerateSecret returns a new random secret suitable for TOTPSecret
// storage.
func GenerateSecret() ([]byte, error) {
	secret := make([]byte, SecretLength)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("totp: failed to generate secret: %w", err)
	}
	return secret, nil
}

// EncodeSecret renders secret as unpadded base32, the form used inside an
// otpauth:// URI and typically shown to a user for manual entry.
func EncodeSecret(secret []byte) string {
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret)
}

// DecodeSecret parses a base32-encoded secret (padded or not).
func DecodeSecret(encoded string) ([]byte, error) {
	encoded = strings.ToUpper(strings.TrimSpace(encoded))
	if n := len(encoded) % 8; n != 0 {
		encoded += strings.Repeat("=", 8-n)
	}
	return base32.StdEncoding.DecodeString(encoded)
}

// hotp computes the RFC 4226 HMAC-based OTP for counter under secret.
func hotp(secret []byte, counter uint64) uint32 {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, counter)

	mac := hmac.New(sha1.New, secret)
	mac.Write(buf)
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	code := (uint32(sum[offset])&0x7f)<<24 |
		uint32(sum[offset+1])<<16 |
		uint32(sum[offset+2])<<8 |
		uint32(sum[offset+3])
	return code % uint32(math.Pow10(Digits))
}

// Generate returns the Digits-long decimal code for secret at instant t.
func Generate(secret []byte, t time.Time) string {
	counter := uint64(t.Unix()) / uint64(Period.Seconds())
	return fmt.Sprintf("%0*d", Digits, hotp(secret, counter))
}

// Validate checks code against the codes valid at t and within skew steps
// on either side, to tolerate modest clock drift between client and server.
func Validate(secret []byte, code string, t time.Time, skew int) bool {
	counter := uint64(t.Unix()) / uint64(Period.Seconds())
	for d := -skew; d <= skew; d++ {
		c := counter
		if d < 0 && uint64(-d) > c {
			continue
		}
		c += uint64(d)
		want := fmt.Sprintf("%0*d", Digits, hotp(secret, c))
		if hmac.Equal([]byte(want), []byte(code)) {
			return true
		}
	}
	return false
}

// ProvisioningURI builds the otpauth://totp/ URI a client authenticator app
// scans to enroll secret for account under issuer.
func ProvisioningURI(issuer, account string, secret []byte) string {
	v := url.Values{}
	v.Set("secret", EncodeSecret(secret))
	v.Set("issuer", issuer)
	v.Set("algorithm", "SHA1")
	v.Set("digits", fmt.Sprintf("%d", Digits))
	v.Set("period", fmt.Sprintf("%d", int(Period.Seconds())))

	label := url.PathEscape(fmt.Sprintf("%s:%s", issuer, account))
	return fmt.Sprintf("otpauth://totp/%s?%s", label, v.Encode())
}
