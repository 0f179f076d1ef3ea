package auth

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/url"
	"os"
)

// Thumbprint computes the base64url (no padding) SHA-256 digest of a
// DER-encoded certificate, the x5t#S256 confirmation value of RFC 8705.
func Thumbprint(der []byte) string {
	sum := sha256.Sum256(der)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ParseCertificatePEM parses the first CERTIFICATE block in a PEM bundle.
func ParseCertificatePEM(data []byte) (*x509.Certificate, error) {
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		return x509.ParseCertificate(block.Bytes)
	}
	return nil, fmt.Errorf("no certificate found in PEM data")
}

// LoadCertificate reads and parses a PEM certificate file.
func LoadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading certificate %s: %w", path, err)
	}
	cert, err := ParseCertificatePEM(data)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate %s: %w", path, err)
	}
	return cert, nil
}

// ParseEscapedCertificate decodes a URL-escaped PEM certificate, the form in
// which a reverse proxy forwards the peer certificate in a header.
func ParseEscapedCertificate(escaped string) (*x509.Certificate, error) {
	raw, err := url.QueryUnescape(escaped)
	if err != nil {
		return nil, fmt.Errorf("unescaping certificate header: %w", err)
	}
	return ParseCertificatePEM([]byte(raw))
}
