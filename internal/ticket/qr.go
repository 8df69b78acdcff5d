package ticket

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	qrSize          = 256
	dataURLPrefix   = "data:image/png;base64,"
	qrRecoveryLevel = qrcode.Medium
)

// RenderQR encodes payload as a PNG QR code and returns it as a data URL
// suitable for an <img src>.
func RenderQR(payload string) (string, error) {
	png, err := qrcode.Encode(payload, qrRecoveryLevel, qrSize)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// Issue builds both QR fields for a ticket code: the signed payload and
// its rendered image.
func (s *Signer) Issue(code string) (payload, image string, err error) {
	payload = s.Payload(code)
	image, err = RenderQR(payload)
	if err != nil {
		return "", "", err
	}
	return payload, image, nil
}
