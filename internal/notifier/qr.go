package notifier

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// QRRenderer encodes login URLs as PNG QR codes.
type QRRenderer struct {
	size int
}

func NewQRRenderer(size int) *QRRenderer {
	return &QRRenderer{size: size}
}

func (r *QRRenderer) Render(content string) ([]byte, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, r.size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
