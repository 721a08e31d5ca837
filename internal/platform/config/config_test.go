package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		EnvProjectID: "maple-dev",
		EnvJWTSecret: "dev-secret",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Environment != "local" {
		t.Errorf("expected default environment local, got %s", cfg.Environment)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 30*time.Second {
		t.Errorf("unexpected write timeout: %s", cfg.Server.WriteTimeout)
	}
	if cfg.Firestore.ProjectID != "maple-dev" {
		t.Errorf("unexpected firestore project: %s", cfg.Firestore.ProjectID)
	}
	if cfg.Firestore.DatabaseID != "(default)" {
		t.Errorf("unexpected firestore database: %s", cfg.Firestore.DatabaseID)
	}
	if cfg.Events.Enabled {
		t.Error("expected events disabled by default")
	}
	if cfg.Events.ProjectID != "maple-dev" {
		t.Errorf("expected events project to default to cloud project, got %s", cfg.Events.ProjectID)
	}
	if cfg.Events.ReviewTopic != "checkout-reviewed" {
		t.Errorf("unexpected default review topic: %s", cfg.Events.ReviewTopic)
	}
	if cfg.Checkout.ShippingFlatFee != 0 {
		t.Errorf("unexpected default shipping fee: %d", cfg.Checkout.ShippingFlatFee)
	}
	if cfg.Checkout.MaxShopGroups != 20 {
		t.Errorf("unexpected default shop group cap: %d", cfg.Checkout.MaxShopGroups)
	}
	if cfg.Checkout.MaxItemsPerShop != 100 {
		t.Errorf("unexpected default per-shop item cap: %d", cfg.Checkout.MaxItemsPerShop)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		EnvServerPort:                  "9090",
		EnvEnvironment:                 "production",
		EnvProjectID:                   "maple-prod",
		EnvJWTSecret:                   "secret://jwt/hmac",
		"SERVER_READ_TIMEOUT":          "20s",
		"SERVER_WRITE_TIMEOUT":         "25s",
		"SERVER_REQUEST_TIMEOUT":       "90s",
		"FIRESTORE_DATABASE_ID":        "orders",
		"AUTH_ISSUER":                  "https://auth.maplemarket.dev",
		"AUTH_AUDIENCE":                "maplemarket-api",
		"EVENTS_ENABLED":               "true",
		"EVENTS_PROJECT_ID":            "maple-events",
		"EVENTS_CHECKOUT_REVIEW_TOPIC": "checkout-reviewed-prod",
		"CHECKOUT_SHIPPING_FLAT_FEE":   "1500",
		"CHECKOUT_MAX_SHOP_GROUPS":     "5",
		"CHECKOUT_MAX_ITEMS_PER_SHOP":  "40",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if ref != "secret://jwt/hmac" {
			return "", errors.New("unknown secret")
		}
		return "resolved-hmac-secret\n", nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Environment != "production" {
		t.Errorf("unexpected environment: %s", cfg.Environment)
	}
	if cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.RequestTimeout != 90*time.Second {
		t.Errorf("unexpected request timeout: %s", cfg.Server.RequestTimeout)
	}
	if cfg.Firestore.DatabaseID != "orders" {
		t.Errorf("unexpected firestore database: %s", cfg.Firestore.DatabaseID)
	}
	if cfg.Auth.JWTSecret != "resolved-hmac-secret" {
		t.Errorf("expected resolved and trimmed jwt secret, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Auth.Issuer != "https://auth.maplemarket.dev" {
		t.Errorf("unexpected issuer: %s", cfg.Auth.Issuer)
	}
	if !cfg.Events.Enabled {
		t.Error("expected events enabled")
	}
	if cfg.Events.ProjectID != "maple-events" {
		t.Errorf("unexpected events project: %s", cfg.Events.ProjectID)
	}
	if cfg.Events.ReviewTopic != "checkout-reviewed-prod" {
		t.Errorf("unexpected review topic: %s", cfg.Events.ReviewTopic)
	}
	if cfg.Checkout.ShippingFlatFee != 1500 {
		t.Errorf("unexpected shipping fee: %d", cfg.Checkout.ShippingFlatFee)
	}
	if cfg.Checkout.MaxShopGroups != 5 {
		t.Errorf("unexpected shop group cap: %d", cfg.Checkout.MaxShopGroups)
	}
	if cfg.Checkout.MaxItemsPerShop != 40 {
		t.Errorf("unexpected per-shop item cap: %d", cfg.Checkout.MaxItemsPerShop)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "PORT=7070\nGOOGLE_CLOUD_PROJECT=maple-dot\nAUTH_JWT_SECRET=\"dot-secret\"\n# comment line\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("expected port from dotenv 7070, got %d", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "maple-dot" {
		t.Errorf("expected project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Auth.JWTSecret != "dot-secret" {
		t.Errorf("expected unquoted secret from dotenv, got %q", cfg.Auth.JWTSecret)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := verr.Fields()
	if len(fields) != 2 {
		t.Fatalf("expected 2 invalid fields, got %v", fields)
	}
	if fields[0] != EnvJWTSecret || fields[1] != EnvProjectID {
		t.Errorf("unexpected invalid fields: %v", fields)
	}
}

func TestLoadEmulatorSatisfiesProject(t *testing.T) {
	env := map[string]string{
		EnvJWTSecret:              "dev-secret",
		"FIRESTORE_EMULATOR_HOST": "localhost:8089",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firestore.EmulatorHost != "localhost:8089" {
		t.Errorf("unexpected emulator host: %s", cfg.Firestore.EmulatorHost)
	}
}

func TestLoadSecretResolverMissing(t *testing.T) {
	env := map[string]string{
		EnvProjectID: "maple-dev",
		EnvJWTSecret: "secret://jwt/hmac",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected error when resolver is not configured")
	}
}

func TestLoadSecretResolverFailure(t *testing.T) {
	env := map[string]string{
		EnvProjectID: "maple-dev",
		EnvJWTSecret: "secret://jwt/hmac",
	}
	resolver := SecretResolverFunc(func(_ context.Context, _ string) (string, error) {
		return "", errors.New("backend down")
	})

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err == nil {
		t.Fatal("expected resolver failure to surface")
	}
}
