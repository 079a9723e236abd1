package totp

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// QRCodeGenerator renders a TOTP provisioning URI as a scannable QR code.
type QRCodeGenerator struct {
	Size          int
	RecoveryLevel qrcode.RecoveryLevel
}

// NewQRCodeGenerator creates a QRCodeGenerator with defaults suited to
// authenticator-app scanning.
func NewQRCodeGenerator() *QRCodeGenerator {
	return &QRCodeGenerator{Size: 256, RecoveryLevel: qrcode.Medium}
}

// NewQRCodeGeneratorWithOptions creates a QRCodeGenerator with custom size
// and recovery level, falling back to the default size if non-positive.
func NewQRCodeGeneratorWithOptions(size int, recovery qrcode.RecoveryLevel) *QRCodeGenerator {
	if size <= 0 {
		size = 256
	}
	return &QRCodeGenerator{Size: size, RecoveryLevel: recovery}
}

// GeneratePNG renders content (typically a ProvisioningURI) as PNG image
// data.
func (qr *QRCodeGenerator) GeneratePNG(content string) ([]byte, error) {
	pngData, err := qrcode.Encode(content, qr.RecoveryLevel, qr.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code PNG: %w", err)
	}
	return pngData, nil
}

// GenerateDataURI renders content as a base64 data: URI suitable for
// embedding directly in an <img> tag on the account settings page.
func (qr *QRCodeGenerator) GenerateDataURI(content string) (string, error) {
	pngData, err := qr.GeneratePNG(content)
	if err != nil {
		return "", err
	}
	encoded := base64.StdEncoding.EncodeToString(pngData)
	return fmt.Sprintf("data:image/png;base64,%s", encoded), nil
}

// GenerateEnrollmentQR is the convenience entry point for account
// registration/settings: build the otpauth:// URI for secret and render it
// as a PNG.
func GenerateEnrollmentQR(issuer, account string, secret []byte) ([]byte, error) {
	return NewQRCodeGenerator().GeneratePNG(ProvisioningURI(issuer, account, secret))
}

// GenerateTerminal renders content as an ASCII-art QR code for
// administrator console output.
func (qr *QRCodeGenerator) GenerateTerminal(content string) (string, error) {
	qrCode, err := qrcode.New(content, qr.RecoveryLevel)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}
	return convertBitmapToASCII(qrCode.Bitmap()), nil
}

func convertBitmapToASCII(bitmap [][]bool) string {
	var buf bytes.Buffer
	for _, row := range bitmap {
		for _, cell := range row {
			if cell {
				buf.WriteString("██")
			} else {
				buf.WriteString("  ")
			}
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
