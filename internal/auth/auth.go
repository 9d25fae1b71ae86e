// Package auth turns bearer tokens into principals.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUnauthenticated is returned when a token is missing, malformed,
	// expired, or signed by an unknown key.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when a valid principal lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// Principal is the identity behind a verified token.
type Principal struct {
	Subject string
	Email   string
	Admin   bool
	Method  string // "oidc" or "static"
}

// Verifier validates a raw bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// AdminSet decides admin membership by email, case-insensitively.
type AdminSet map[string]struct{}

// NewAdminSet builds an AdminSet from a list of emails.
func NewAdminSet(emails []string) AdminSet {
	set := make(AdminSet, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}

// Contains reports whether email belongs to an admin.
func (s AdminSet) Contains(email string) bool {
	if email == "" {
		return false
	}
	_, ok := s[strings.ToLower(strings.TrimSpace(email))]
	return ok
}

// Chain tries each verifier in order and returns the first principal.
// A nil Chain, or one with no verifiers, rejects every token.
type Chain []Verifier

// Verify implements Verifier.
func (c Chain) Verify(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	var errs []error
	for _, v := range c {
		p, err := v.Verify(ctx, token)
		if err == nil {
			return p, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, ErrUnauthenticated
	}
	return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, errors.Join(errs...))
}

// StaticToken is a pre-shared service token stored as a bcrypt hash.
type StaticToken struct {
	Name  string
	Email string
	Hash  string
	Admin bool
}

// StaticVerifier accepts configured service tokens.
type StaticVerifier struct {
	tokens []StaticToken
}

// NewStaticVerifier creates a StaticVerifier. Tokens with an empty hash
// are ignored.
func NewStaticVerifier(tokens []StaticToken) *StaticVerifier {
	kept := make([]StaticToken, 0, len(tokens))
	for _, t := range tokens {
		if t.Hash != "" {
			kept = append(kept, t)
		}
	}
	return &StaticVerifier{tokens: kept}
}

// Len returns the number of usable tokens.
func (v *StaticVerifier) Len() int { return len(v.tokens) }

// Verify implements Verifier.
func (v *StaticVerifier) Verify(_ context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	pre := prehashToken(token)
	for _, t := range v.tokens {
		if bcrypt.CompareHashAndPassword([]byte(t.Hash), pre) == nil {
			return &Principal{Subject: t.Name, Email: t.Email, Admin: t.Admin, Method: "static"}, nil
		}
	}
	return nil, ErrUnauthenticated
}

// HashToken returns the bcrypt hash stored in configuration for a
// service token.
func HashToken(token string) (string, error) {
	if token == "" {
		return "", errors.New("token is empty")
	}
	hash, err := bcrypt.GenerateFromPassword(prehashToken(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing token: %w", err)
	}
	return string(hash), nil
}

// GenerateToken returns a random hex token suitable for a service account.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// prehashToken hashes the token with SHA-256 before bcrypt so tokens longer
// than bcrypt's 72-byte limit stay fully significant.
func prehashToken(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return []byte(hex.EncodeToString(h[:]))
}
