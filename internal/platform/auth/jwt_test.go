package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return raw
}

func TestVerifyTokenSuccess(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret, "maplemarket-auth", "maplemarket-api")
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}

	raw := signToken(t, jwt.MapClaims{
		"sub":     "user-1",
		"iss":     "maplemarket-auth",
		"aud":     "maplemarket-api",
		"exp":     time.Now().Add(time.Hour).Unix(),
		"shop_id": "shop-1",
		"email":   "seller@example.com",
		"roles":   []string{"Seller"},
	})

	identity, err := verifier.VerifyToken(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.UID != "user-1" || identity.ShopID != "shop-1" {
		t.Fatalf("unexpected identity %#v", identity)
	}
	if !identity.HasRole(RoleSeller) {
		t.Fatalf("expected lowercased seller role, got %v", identity.Roles)
	}
}

func TestVerifyTokenDefaultsUserRole(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret, "", "")
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}

	raw := signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	identity, err := verifier.VerifyToken(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(identity.Roles) != 1 || identity.Roles[0] != RoleUser {
		t.Fatalf("expected default user role, got %v", identity.Roles)
	}
}

func TestVerifyTokenExpired(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret, "", "")
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}

	raw := signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := verifier.VerifyToken(context.Background(), raw); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	verifier, err := NewJWTVerifier("other-secret", "", "")
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}

	raw := signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := verifier.VerifyToken(context.Background(), raw); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerifyTokenIssuerAndAudience(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret, "expected-issuer", "expected-audience")
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}

	raw := signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"iss": "wrong-issuer",
		"aud": "expected-audience",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := verifier.VerifyToken(context.Background(), raw); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong issuer, got %v", err)
	}
}

func TestVerifyTokenMissingSubject(t *testing.T) {
	verifier, err := NewJWTVerifier(testSecret, "", "")
	if err != nil {
		t.Fatalf("failed to build verifier: %v", err)
	}

	raw := signToken(t, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if _, err := verifier.VerifyToken(context.Background(), raw); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for missing subject, got %v", err)
	}
}

func TestNewJWTVerifierRequiresSecret(t *testing.T) {
	if _, err := NewJWTVerifier("  ", "", ""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
