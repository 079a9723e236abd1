package totp

import (
	"strings"
	"testing"

	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewQRCodeGenerator(t *testing.T) {
	t.Run("should create a generator with default settings", func(t *testing.T) {
		g := NewQRCodeGenerator()
		assert.Equal(t, 256, g.Size)
		assert.Equal(t, qrcode.Medium, g.RecoveryLevel)
	})
}

func TestNewQRCodeGeneratorWithOptions(t *testing.T) {
	t.Run("should honor a positive custom size", func(t *testing.T) {
		g := NewQRCodeGeneratorWithOptions(512, qrcode.High)
		assert.Equal(t, 512, g.Size)
		assert.Equal(t, qrcode.High, g.RecoveryLevel)
	})

	t.Run("should fall back to the default size when non-positive", func(t *testing.T) {
		g := NewQRCodeGeneratorWithOptions(0, qrcode.Medium)
		assert.Equal(t, 256, g.Size)
	})
}

func TestQRCodeGenerator_GeneratePNG(t *testing.T) {
	t.Run("should produce non-empty PNG data with a valid signature", func(t *testing.T) {
		g := NewQRCodeGenerator()
		png, err := g.GeneratePNG("otpauth://totp/CollabVM:alice?secret=ABC")
		require.NoError(t, err)
		require.NotEmpty(t, png)
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
	})
}

func TestQRCodeGenerator_GenerateDataURI(t *testing.T) {
	t.Run("should produce a base64 PNG data URI", func(t *testing.T) {
		g := NewQRCodeGenerator()
		uri, err := g.GenerateDataURI("otpauth://totp/CollabVM:alice?secret=ABC")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))
	})
}

func TestGenerateEnrollmentQR(t *testing.T) {
	t.Run("should render the provisioning URI for the given account", func(t *testing.T) {
		secret, err := GenerateSecret()
		require.NoError(t, err)

		png, err := GenerateEnrollmentQR("CollabVM", "alice", secret)
		require.NoError(t, err)
		assert.NotEmpty(t, png)
	})
}

func TestQRCodeGenerator_GenerateTerminal(t *testing.T) {
	t.Run("should render a non-empty ASCII block grid", func(t *testing.T) {
		g := NewQRCodeGenerator()
		ascii, err := g.GenerateTerminal("otpauth://totp/CollabVM:alice?secret=ABC")
		require.NoError(t, err)
		assert.Contains(t, ascii, "\n")
	})
}
