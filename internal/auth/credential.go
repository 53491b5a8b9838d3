package auth

import (
	"fmt"

	pkgauth "github.com/BradenHooton/paydesk/pkg/auth"
)

// CredentialVerifier checks passwords against stored bcrypt hashes. It also
// burns an equivalent amount of work for identifiers that matched nothing.
type CredentialVerifier struct {
	dummyHash string
}

// NewCredentialVerifier precomputes a hash at cost so Equalize costs the same
// as a real comparison
func NewCredentialVerifier(cost int) (*CredentialVerifier, error) {
	hash, err := pkgauth.HashPasswordWithCost("paydesk-equalization-placeholder", cost)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare credential verifier: %w", err)
	}
	return &CredentialVerifier{dummyHash: hash}, nil
}

// Check reports whether password matches hash. Empty inputs never match.
func (cv *CredentialVerifier) Check(hash, password string) bool {
	if hash == "" || password == "" {
		return false
	}
	return pkgauth.ComparePassword(hash, password) == nil
}

// Equalize runs a comparison that always fails
func (cv *CredentialVerifier) Equalize(password string) {
	_ = pkgauth.ComparePassword(cv.dummyHash, password)
}
