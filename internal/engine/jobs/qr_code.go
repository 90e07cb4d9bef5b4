package jobs

import (
	"errors"

	"github.com/skip2/go-qrcode"
)

// GenerateQRCode renders a PNG QR code pointing at a job card URL, for
// printing on work orders handed to field staff.
func GenerateQRCode(jobURL string, size int) ([]byte, error) {
	if size == 0 {
		size = 512
	}
	if size < 128 || size > 2048 {
		return nil, errors.New("invalid size: must be between 128 and 2048")
	}

	qr, err := qrcode.New(jobURL, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	qr.DisableBorder = false

	return qr.PNG(size)
}
