package export

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

// QRSize is the edge length of generated cards in pixels; big enough to scan
// from a phone held at arm's length.
const QRSize = 320

// RevealURL builds the link a giver follows to reveal their match, with the
// name and code pre-filled.
func RevealURL(publicURL, giver, code string) (string, error) {
	base, err := url.Parse(strings.TrimSpace(publicURL))
	if err != nil {
		return "", fmt.Errorf("export: parsing public URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("export: public URL %q must be absolute", publicURL)
	}
	if base.Path == "" {
		base.Path = "/"
	}
	q := url.Values{}
	q.Set("name", giver)
	q.Set("code", code)
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// QRCode renders the reveal link for one giver as a PNG.
func QRCode(publicURL, giver, code string, size int) ([]byte, error) {
	link, err := RevealURL(publicURL, giver, code)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = QRSize
	}
	png, err := qrcode.Encode(link, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("export: encoding QR code: %w", err)
	}
	return png, nil
}
