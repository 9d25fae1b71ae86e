package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
)

const testIssuer = "https://securetoken.google.com/camwatch-test"

type testSigner struct {
	key    *rsa.PrivateKey
	signer jose.Signer
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		t.Fatalf("creating signer: %v", err)
	}
	return &testSigner{key: key, signer: signer}
}

func (s *testSigner) token(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	jws, err := s.signer.Sign(payload)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	raw, err := jws.CompactSerialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return raw
}

func baseClaims(email string) map[string]any {
	now := time.Now()
	return map[string]any{
		"iss":            testIssuer,
		"aud":            "camwatch-test",
		"sub":            "user-1",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
		"email":          email,
		"email_verified": true,
	}
}

func newTestOIDC(s *testSigner, admins ...string) *OIDCVerifier {
	keys := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&s.key.PublicKey}}
	return NewOIDCVerifierWithKeySet(testIssuer, keys, &oidc.Config{ClientID: "camwatch-test"}, NewAdminSet(admins))
}

func TestOIDCVerifier(t *testing.T) {
	s := newTestSigner(t)
	v := newTestOIDC(s, "Admin@Example.com")
	ctx := context.Background()

	p, err := v.Verify(ctx, s.token(t, baseClaims("admin@example.com")))
	if err != nil {
		t.Fatalf("Verify admin: %v", err)
	}
	if !p.Admin || p.Subject != "user-1" || p.Method != "oidc" {
		t.Errorf("admin principal = %+v", p)
	}

	p, err = v.Verify(ctx, s.token(t, baseClaims("viewer@example.com")))
	if err != nil {
		t.Fatalf("Verify viewer: %v", err)
	}
	if p.Admin {
		t.Error("non-listed email should not be admin")
	}

	unverified := baseClaims("admin@example.com")
	unverified["email_verified"] = false
	p, err = v.Verify(ctx, s.token(t, unverified))
	if err != nil {
		t.Fatalf("Verify unverified: %v", err)
	}
	if p.Admin {
		t.Error("unverified email must not grant admin")
	}
}

func TestOIDCVerifier_Rejects(t *testing.T) {
	s := newTestSigner(t)
	v := newTestOIDC(s, "admin@example.com")
	ctx := context.Background()

	expired := baseClaims("admin@example.com")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	wrongAud := baseClaims("admin@example.com")
	wrongAud["aud"] = "someone-else"

	wrongIss := baseClaims("admin@example.com")
	wrongIss["iss"] = "https://evil.example.com"

	other := newTestSigner(t)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"expired", s.token(t, expired)},
		{"wrong audience", s.token(t, wrongAud)},
		{"wrong issuer", s.token(t, wrongIss)},
		{"unknown key", other.token(t, baseClaims("admin@example.com"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(ctx, tt.token)
			if !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("err = %v, want ErrUnauthenticated", err)
			}
		})
	}
}

func TestStaticVerifier(t *testing.T) {
	hash, err := HashToken("service-secret")
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}
	v := NewStaticVerifier([]StaticToken{
		{Name: "ignored"},
		{Name: "ops", Email: "ops@example.com", Hash: hash, Admin: true},
	})
	if v.Len() != 1 {
		t.Errorf("Len = %d, want 1", v.Len())
	}

	p, err := v.Verify(context.Background(), "service-secret")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Subject != "ops" || !p.Admin || p.Method != "static" {
		t.Errorf("principal = %+v", p)
	}

	if _, err := v.Verify(context.Background(), "wrong"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("wrong token err = %v", err)
	}
	if _, err := HashToken(""); err == nil {
		t.Error("expected error hashing empty token")
	}
}

func TestChain(t *testing.T) {
	s := newTestSigner(t)
	hash, err := HashToken("svc")
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}
	chain := Chain{
		newTestOIDC(s),
		NewStaticVerifier([]StaticToken{{Name: "svc", Hash: hash}}),
	}
	ctx := context.Background()

	p, err := chain.Verify(ctx, "svc")
	if err != nil || p.Method != "static" {
		t.Errorf("static via chain = %+v, %v", p, err)
	}
	p, err = chain.Verify(ctx, s.token(t, baseClaims("x@example.com")))
	if err != nil || p.Method != "oidc" {
		t.Errorf("oidc via chain = %+v, %v", p, err)
	}
	if _, err := chain.Verify(ctx, "nope"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("err = %v", err)
	}
	if _, err := (Chain{}).Verify(ctx, "svc"); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("empty chain err = %v", err)
	}
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenerateToken()
	if len(a) != 64 || a == b {
		t.Errorf("tokens %q %q", a, b)
	}
}
