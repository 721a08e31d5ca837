package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	secretScheme        = "secret://"
	metricNamespace     = "github.com/maplemarket/api/internal/platform/secrets"
)

// ErrSecretNotFound indicates no value could be resolved for the reference.
var ErrSecretNotFound = errors.New("secrets: secret not found")

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

type cacheEntry struct {
	value     string
	fetchedAt time.Time
}

// Fetcher resolves secret:// references through Google Secret Manager with an
// in-process cache and a dotenv-style local fallback file.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool

	logger        *zap.Logger
	env           string
	defaultProjID string
	fallbackPath  string

	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]cacheEntry

	latency        metric.Float64Histogram
	latencyEnabled bool
}

type fetcherConfig struct {
	logger       *zap.Logger
	env          string
	defaultProj  string
	fallbackPath string
	client       secretManagerClient
	clientOpts   []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithEnvironment selects the deployment environment; "local" prefers the fallback file.
func WithEnvironment(env string) Option {
	return func(cfg *fetcherConfig) {
		cfg.env = strings.ToLower(strings.TrimSpace(env))
	}
}

// WithDefaultProject configures the project ID used for unqualified references.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.defaultProj = strings.TrimSpace(projectID)
	}
}

// WithFallbackFile overrides the path to the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) {
		cfg.fallbackPath = strings.TrimSpace(path)
	}
}

// WithSecretManagerClient injects a preconfigured client (primarily for tests).
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions forwards Cloud client options when constructing the client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// NewFetcher builds a Fetcher with caching and local fallback support.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		env:          defaultEnvironment,
		fallbackPath: defaultFallbackPath,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	meter := otel.GetMeterProvider().Meter(metricNamespace)
	latency, latencyErr := meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	)
	if latencyErr != nil {
		cfg.logger.Warn("secrets: unable to register latency metric", zap.Error(latencyErr))
	}

	f := &Fetcher{
		logger:         cfg.logger,
		env:            cfg.env,
		defaultProjID:  cfg.defaultProj,
		fallbackPath:   cfg.fallbackPath,
		cache:          make(map[string]cacheEntry),
		latency:        latency,
		latencyEnabled: latencyErr == nil,
	}

	if cfg.client != nil {
		f.client = cfg.client
	} else {
		client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager client unavailable; operating in fallback mode", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}

	return f, nil
}

// Close releases resources held by the fetcher.
func (f *Fetcher) Close() error {
	if f == nil || !f.ownsClient || f.client == nil {
		return nil
	}
	return f.client.Close()
}

// ResolveSecret resolves a secret:// reference to its cleartext value.
// References take the form secret://name, secret://project/name, or
// secret://project/name@version (version defaults to "latest").
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	if f == nil {
		return "", ErrSecretNotFound
	}

	project, name, version, err := f.parseReference(ref)
	if err != nil {
		return "", err
	}
	canonical := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, name, version)

	f.mu.RLock()
	entry, hit := f.cache[canonical]
	f.mu.RUnlock()
	if hit {
		return entry.value, nil
	}

	if value, ok := f.fallbackValue(name); ok {
		f.store(canonical, value)
		return value, nil
	}

	if f.client == nil {
		return "", fmt.Errorf("%w: %s (no client and no fallback entry)", ErrSecretNotFound, name)
	}

	start := time.Now()
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: canonical})
	if f.latencyEnabled {
		f.latency.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.Bool("error", err != nil)))
	}
	if err != nil {
		return "", fmt.Errorf("secrets: access %s: %w", canonical, err)
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}

	value := string(resp.Payload.Data)
	f.store(canonical, value)
	return value, nil
}

func (f *Fetcher) parseReference(ref string) (project, name, version string, err error) {
	trimmed := strings.TrimSpace(ref)
	if !strings.HasPrefix(trimmed, secretScheme) {
		return "", "", "", fmt.Errorf("secrets: reference %q must start with %s", ref, secretScheme)
	}
	body := strings.TrimPrefix(trimmed, secretScheme)

	version = "latest"
	if idx := strings.LastIndex(body, "@"); idx >= 0 {
		if v := strings.TrimSpace(body[idx+1:]); v != "" {
			version = v
		}
		body = body[:idx]
	}

	project = f.defaultProjID
	name = body
	if idx := strings.Index(body, "/"); idx >= 0 {
		project = strings.TrimSpace(body[:idx])
		name = body[idx+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", "", fmt.Errorf("secrets: reference %q has no secret name", ref)
	}
	if project == "" {
		return "", "", "", fmt.Errorf("secrets: reference %q has no project and no default is set", ref)
	}
	return project, name, version, nil
}

func (f *Fetcher) fallbackValue(name string) (string, bool) {
	if f.env != defaultEnvironment {
		return "", false
	}
	f.fallbackOnce.Do(func() {
		f.fallbackVals, f.fallbackErr = loadFallbackFile(f.fallbackPath)
		if f.fallbackErr != nil {
			f.logger.Warn("secrets: fallback file unreadable", zap.String("path", f.fallbackPath), zap.Error(f.fallbackErr))
		}
	})
	value, ok := f.fallbackVals[name]
	return value, ok
}

func (f *Fetcher) store(canonical, value string) {
	f.mu.Lock()
	f.cache[canonical] = cacheEntry{value: value, fetchedAt: time.Now()}
	f.mu.Unlock()
}

func loadFallbackFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
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
		values[strings.TrimSpace(line[:idx])] = strings.TrimSpace(line[idx+1:])
	}
	return values, scanner.Err()
}
