package payment

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// DefaultQRSize: сторона PNG с QR-кодом в пикселях.
const DefaultQRSize = 256

// QRCode рендерит ссылку на оплату в PNG.
func QRCode(paymentURL string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultQRSize
	}

	qr, err := qrcode.New(paymentURL, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("create QR code: %w", err)
	}

	png, err := qr.PNG(size)
	if err != nil {
		return nil, fmt.Errorf("render QR code: %w", err)
	}

	return png, nil
}
