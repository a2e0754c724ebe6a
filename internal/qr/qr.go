// Package qr renders short link QR codes.
package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length in pixels
const DefaultSize = 256

// EncodePNG renders content as a PNG QR code with ~25% error recovery
func EncodePNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(content, qrcode.High, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
