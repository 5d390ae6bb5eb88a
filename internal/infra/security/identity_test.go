package security

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signHS256(t *testing.T, secret []byte, claims IdentityClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func validClaims() IdentityClaims {
	now := time.Now()
	return IdentityClaims{
		UserID: "user-1",
		Email:  "jane@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "idp",
			Audience:  jwt.ClaimStrings{"payroll"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
}

func TestBearerVerifierHMAC(t *testing.T) {
	secret := []byte("test-secret")
	verifier, err := NewBearerVerifier(BearerVerifierConfig{Issuer: "idp", Audience: []string{"payroll"}, HMACSecret: secret})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	principal, err := verifier.Verify(context.Background(), signHS256(t, secret, validClaims()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if principal.UserID != "user-1" || principal.Email != "jane@example.com" {
		t.Fatalf("unexpected principal %+v", principal)
	}
}

func TestBearerVerifierRejectsBadTokens(t *testing.T) {
	secret := []byte("test-secret")
	verifier, err := NewBearerVerifier(BearerVerifierConfig{Issuer: "idp", Audience: []string{"payroll"}, HMACSecret: secret})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"other"}

	noSubject := validClaims()
	noSubject.UserID = ""

	tokens := map[string]string{
		"empty":          "",
		"garbage":        "not-a-token",
		"wrong secret":   signHS256(t, []byte("other"), validClaims()),
		"expired":        signHS256(t, secret, expired),
		"wrong audience": signHS256(t, secret, wrongAudience),
		"no subject":     signHS256(t, secret, noSubject),
	}
	for name, token := range tokens {
		if _, err := verifier.Verify(context.Background(), token); !errors.Is(err, ErrInvalidBearer) {
			t.Fatalf("%s: expected ErrInvalidBearer, got %v", name, err)
		}
	}
}

func TestBearerVerifierRSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	verifier, err := NewBearerVerifier(BearerVerifierConfig{
		Issuer: "idp",
		Keys:   NewStaticKeyProvider(map[string]*rsa.PublicKey{"k1": &key.PublicKey}),
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	claims := validClaims()
	claims.UserID = ""
	claims.Subject = "user-9"
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "k1"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	principal, err := verifier.Verify(context.Background(), signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if principal.UserID != "user-9" {
		t.Fatalf("expected subject fallback, got %q", principal.UserID)
	}

	token.Header["kid"] = "unknown"
	signed, _ = token.SignedString(key)
	if _, err := verifier.Verify(context.Background(), signed); err == nil {
		t.Fatalf("expected unknown kid to be rejected")
	}
}
