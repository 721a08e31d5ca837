package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// EnvServerPort configures the HTTP listen port.
	EnvServerPort = "PORT"
	// EnvEnvironment names the deployment environment (local, staging, production).
	EnvEnvironment = "APP_ENV"
	// EnvProjectID supplies the Google Cloud project used by Firestore and Pub/Sub.
	EnvProjectID = "GOOGLE_CLOUD_PROJECT"
	// EnvJWTSecret supplies the HMAC secret (or secret:// reference) used to verify tokens.
	EnvJWTSecret = "AUTH_JWT_SECRET"

	defaultEnvironment    = "local"
	defaultPort           = 8080
	defaultReadTimeout    = 15 * time.Second
	defaultWriteTimeout   = 30 * time.Second
	defaultRequestTimeout = 60 * time.Second
	secretScheme          = "secret://"
)

// Config aggregates the runtime configuration for the API process.
type Config struct {
	Environment string
	Server      ServerConfig
	Firestore   FirestoreConfig
	Auth        AuthConfig
	Events      EventsConfig
	Checkout    CheckoutConfig
}

// ServerConfig groups HTTP server tunables.
type ServerConfig struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
}

// FirestoreConfig describes the Firestore connection.
type FirestoreConfig struct {
	ProjectID    string
	DatabaseID   string
	EmulatorHost string
}

// AuthConfig carries token verification material.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

// EventsConfig configures Pub/Sub publication of checkout review events.
type EventsConfig struct {
	Enabled     bool
	ProjectID   string
	ReviewTopic string
}

// CheckoutConfig carries checkout engine tunables.
type CheckoutConfig struct {
	// ShippingFlatFee is the placeholder shipping fee in minor units. Zero until
	// a real shipping integration lands.
	ShippingFlatFee int64
	MaxShopGroups   int
	MaxItemsPerShop int
}

// SecretResolver resolves secret:// references to their cleartext values.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a plain function to the SecretResolver interface.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret implements SecretResolver.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError reports configuration fields that failed validation.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: invalid fields: %s", strings.Join(e.fields, ", "))
}

// Fields lists the offending field names.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises config loading.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile       string
	envOverrides  map[string]string
	skipSystemEnv bool
	resolver      SecretResolver
}

// WithEnvFile loads KEY=VALUE pairs from the given dotenv-style file when it exists.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = strings.TrimSpace(path)
	}
}

// WithEnvMap overlays the provided values on top of the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		if o.envOverrides == nil {
			o.envOverrides = make(map[string]string, len(values))
		}
		for k, v := range values {
			o.envOverrides[k] = v
		}
	}
}

// WithoutSystemEnv ignores the process environment; useful in tests.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.skipSystemEnv = true
	}
}

// WithSecretResolver installs the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.resolver = resolver
	}
}

// Load assembles the Config from environment values, resolving secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	var lo loaderOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&lo)
		}
	}

	values := map[string]string{}
	if lo.envFile != "" {
		fileValues, err := loadDotEnv(lo.envFile)
		if err != nil {
			return Config{}, err
		}
		for k, v := range fileValues {
			values[k] = v
		}
	}
	if !lo.skipSystemEnv {
		for _, entry := range os.Environ() {
			if idx := strings.Index(entry, "="); idx > 0 {
				values[entry[:idx]] = entry[idx+1:]
			}
		}
	}
	for k, v := range lo.envOverrides {
		values[k] = v
	}

	lookup := func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}

	cfg := Config{
		Environment: stringWithDefault(lookup, EnvEnvironment, defaultEnvironment),
		Server: ServerConfig{
			Port:           intWithDefault(lookup, EnvServerPort, defaultPort),
			ReadTimeout:    durationWithDefault(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   durationWithDefault(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			RequestTimeout: durationWithDefault(lookup, "SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, EnvProjectID, ""),
			DatabaseID:   stringWithDefault(lookup, "FIRESTORE_DATABASE_ID", "(default)"),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
		},
		Auth: AuthConfig{
			JWTSecret: stringWithDefault(lookup, EnvJWTSecret, ""),
			Issuer:    stringWithDefault(lookup, "AUTH_ISSUER", ""),
			Audience:  stringWithDefault(lookup, "AUTH_AUDIENCE", ""),
		},
		Events: EventsConfig{
			Enabled:     boolWithDefault(lookup, "EVENTS_ENABLED", false),
			ProjectID:   stringWithDefault(lookup, "EVENTS_PROJECT_ID", stringWithDefault(lookup, EnvProjectID, "")),
			ReviewTopic: stringWithDefault(lookup, "EVENTS_CHECKOUT_REVIEW_TOPIC", "checkout-reviewed"),
		},
		Checkout: CheckoutConfig{
			ShippingFlatFee: int64WithDefault(lookup, "CHECKOUT_SHIPPING_FLAT_FEE", 0),
			MaxShopGroups:   intWithDefault(lookup, "CHECKOUT_MAX_SHOP_GROUPS", 20),
			MaxItemsPerShop: intWithDefault(lookup, "CHECKOUT_MAX_ITEMS_PER_SHOP", 100),
		},
	}

	secret, err := resolveSecret(ctx, cfg.Auth.JWTSecret, lo.resolver)
	if err != nil {
		return Config{}, err
	}
	cfg.Auth.JWTSecret = secret

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, secretScheme) {
		return value, nil
	}
	if resolver == nil {
		return "", errors.New("config: secret resolver not configured")
	}
	resolved, err := resolver.ResolveSecret(ctx, value)
	if err != nil {
		return "", fmt.Errorf("config: resolve %s: %w", EnvJWTSecret, err)
	}
	return strings.TrimSpace(resolved), nil
}

func validateConfig(cfg Config) error {
	var invalid []string
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		invalid = append(invalid, EnvServerPort)
	}
	if cfg.Firestore.ProjectID == "" && cfg.Firestore.EmulatorHost == "" {
		invalid = append(invalid, EnvProjectID)
	}
	if cfg.Auth.JWTSecret == "" {
		invalid = append(invalid, EnvJWTSecret)
	}
	if cfg.Events.Enabled && cfg.Events.ReviewTopic == "" {
		invalid = append(invalid, "EVENTS_CHECKOUT_REVIEW_TOPIC")
	}
	if cfg.Checkout.ShippingFlatFee < 0 {
		invalid = append(invalid, "CHECKOUT_SHIPPING_FLAT_FEE")
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return &ValidationError{fields: invalid}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer file.Close()

	values := map[string]string{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		value = strings.Trim(value, `"'`)
		if key != "" {
			values[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if v, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return fallback
}

func int64WithDefault(lookup func(string) (string, bool), key string, fallback int64) int64 {
	if v, ok := lookup(key); ok {
		if parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if v, ok := lookup(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return parsed
		}
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if v, ok := lookup(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
