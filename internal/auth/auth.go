// Package auth signs Kalshi REST requests and WebSocket handshakes with
// RSA-PSS over timestamp + method + path + body.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Header names carried by every signed request.
const (
	HeaderKey       = "KALSHI-ACCESS-KEY"
	HeaderTimestamp = "KALSHI-ACCESS-TIMESTAMP"
	HeaderSignature = "KALSHI-ACCESS-SIGNATURE"
)

// WebSocketPath is the path used for WebSocket signature generation.
const WebSocketPath = "/trade-api/ws/v2"

// Credentials holds the API key and private key for signing requests.
type Credentials struct {
	KeyID      string          // API key ID from Kalshi dashboard
	PrivateKey *rsa.PrivateKey // RSA private key for signing

	now func() time.Time
}

// New wraps an already parsed key.
func New(keyID string, key *rsa.PrivateKey) *Credentials {
	return &Credentials{KeyID: keyID, PrivateKey: key}
}

// LoadCredentials loads credentials from key ID and private key file path.
func LoadCredentials(keyID, privateKeyPath string) (*Credentials, error) {
	if keyID == "" {
		return nil, errors.New("API key ID is required")
	}
	if privateKeyPath == "" {
		return nil, errors.New("private key path is required")
	}

	privateKey, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}

	return New(keyID, privateKey), nil
}

// CredentialsFromPEM builds credentials from an inline PEM string, as found
// in environment variables. Escaped "\n" sequences are accepted.
func CredentialsFromPEM(keyID, pemText string) (*Credentials, error) {
	if keyID == "" {
		return nil, errors.New("API key ID is required")
	}
	pemText = strings.ReplaceAll(pemText, `\n`, "\n")

	privateKey, err := ParsePrivateKey([]byte(pemText))
	if err != nil {
		return nil, fmt.Errorf("parse inline private key: %w", err)
	}
	return New(keyID, privateKey), nil
}

// LoadPrivateKey loads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return ParsePrivateKey(data)
}

// ParsePrivateKey decodes a PEM block holding a PKCS#8 or PKCS#1 RSA key.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("key is not an RSA private key")
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return rsaKey, nil
}

// SignRequest generates authentication headers for a bodiless request.
// path must not include the query string.
func (c *Credentials) SignRequest(method, path string) (map[string]string, error) {
	return c.SignRequestBody(method, path, nil)
}

// SignRequestBody generates authentication headers covering body as well.
func (c *Credentials) SignRequestBody(method, path string, body []byte) (map[string]string, error) {
	if c == nil || c.PrivateKey == nil {
		return nil, errors.New("credentials have no private key")
	}

	timestampMs := c.clock().UnixMilli()
	signature, err := c.generateSignature(timestampMs, method, path, body)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		HeaderKey:       c.KeyID,
		HeaderTimestamp: strconv.FormatInt(timestampMs, 10),
		HeaderSignature: signature,
	}, nil
}

// SignWebSocket generates authentication headers for the WebSocket handshake.
func (c *Credentials) SignWebSocket() (map[string]string, error) {
	return c.SignRequest("GET", WebSocketPath)
}

// Verify checks a signature produced by SignRequestBody. Used by tests and
// the startup self-check.
func (c *Credentials) Verify(timestampMs int64, method, path string, body []byte, signature string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	hashed := sha256.Sum256(signingMessage(timestampMs, method, path, body))
	return rsa.VerifyPSS(&c.PrivateKey.PublicKey, crypto.SHA256, hashed[:], sig,
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
}

// generateSignature creates an RSA-PSS signature for the given request.
func (c *Credentials) generateSignature(timestampMs int64, method, path string, body []byte) (string, error) {
	hashed := sha256.Sum256(signingMessage(timestampMs, method, path, body))

	signature, err := rsa.SignPSS(
		rand.Reader,
		c.PrivateKey,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

func signingMessage(timestampMs int64, method, path string, body []byte) []byte {
	msg := strconv.FormatInt(timestampMs, 10) + method + path
	return append([]byte(msg), body...)
}

func (c *Credentials) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}
