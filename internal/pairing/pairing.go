package pairing

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

// Credential is the per-process pairing secret. It is generated once at
// startup and stays valid for the process lifetime; every inbound session
// must present the exact token or be refused.
type Credential struct {
	Host  string
	Port  int
	Token string
}

// New generates a fresh credential bound to the local address and port.
func New(port int) *Credential {
	return &Credential{
		Host:  localIP(),
		Port:  port,
		Token: uuid.NewString(),
	}
}

// Blob returns the pairing string the client scans: "<ip>:<port>:<token>".
func (c *Credential) Blob() string {
	return fmt.Sprintf("%s:%d:%s", c.Host, c.Port, c.Token)
}

// QRCodePNG renders the pairing blob as a base64-encoded PNG.
func (c *Credential) QRCodePNG() (string, error) {
	return encodeQR(c.Blob())
}

// TunnelBlob converts a public tunnel URL into the external pairing form
// "wss://<host>:<token>".
func (c *Credential) TunnelBlob(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse tunnel url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("tunnel url %q has no host", rawURL)
	}
	return fmt.Sprintf("wss://%s:%s", u.Host, c.Token), nil
}

// TunnelQRCodePNG renders the external pairing blob as a base64-encoded PNG.
func (c *Credential) TunnelQRCodePNG(rawURL string) (string, error) {
	blob, err := c.TunnelBlob(rawURL)
	if err != nil {
		return "", err
	}
	return encodeQR(blob)
}

func encodeQR(data string) (string, error) {
	png, err := qrcode.Encode(data, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// localIP finds the outbound interface address without sending any packets.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
