package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/BradenHooton/paydesk/internal/models"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	totpPeriod     = 30
	totpDigits     = otp.DigitsSix
	totpSecretSize = 20 // 160 bits
	qrCodeSize     = 256
)

var errSecretCiphertext = errors.New("stored two-factor secret is malformed")

// totpSkewSteps are the time steps accepted around now: one step of drift
// either way.
var totpSkewSteps = []time.Duration{-totpPeriod * time.Second, 0, totpPeriod * time.Second}

// TOTPManager generates, seals and verifies time-based one-time codes
type TOTPManager struct {
	aead   cipher.AEAD
	issuer string
}

// NewTOTPManager requires a 32-byte AES-256 key
func NewTOTPManager(encryptionKey []byte, issuer string) (*TOTPManager, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes, got %d", len(encryptionKey))
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &TOTPManager{aead: aead, issuer: issuer}, nil
}

// Generate creates a new base32 secret with its provisioning URI and a PNG
// QR code data URL for accountName.
func (tm *TOTPManager) Generate(accountName string) (*models.TwoFactorSetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  totpSecretSize,
		Period:      totpPeriod,
		Digits:      totpDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return &models.TwoFactorSetup{
		Secret: key.Secret(),
		URI:    key.URL(),
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// Encrypt seals secret with AES-256-GCM. The result is nonce||ciphertext.
func (tm *TOTPManager) Encrypt(secret string) ([]byte, error) {
	nonce := make([]byte, tm.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return tm.aead.Seal(nonce, nonce, []byte(secret), nil), nil
}

// Decrypt opens a blob produced by Encrypt
func (tm *TOTPManager) Decrypt(sealed []byte) (string, error) {
	n := tm.aead.NonceSize()
	if len(sealed) <= n {
		return "", errSecretCiphertext
	}
	plaintext, err := tm.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return string(plaintext), nil
}

// Verify reports whether code matches secret at now, allowing one period of
// clock drift in each direction. All candidate steps are compared in
// constant time; a match does not end the loop early.
func (tm *TOTPManager) Verify(secret, code string, now time.Time) bool {
	if !wellFormedCode(code) {
		return false
	}

	opts := totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	}

	matched := 0
	for _, offset := range totpSkewSteps {
		expected, err := totp.GenerateCodeCustom(secret, now.Add(offset), opts)
		if err != nil {
			return false
		}
		matched |= subtle.ConstantTimeCompare([]byte(expected), []byte(code))
	}
	return matched == 1
}

func wellFormedCode(code string) bool {
	if len(code) != totpDigits.Length() {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
