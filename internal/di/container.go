package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/maplemarket/api/internal/platform/config"
	"github.com/maplemarket/api/internal/repositories"
	"github.com/maplemarket/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Products  services.ProductResolver
	Discounts services.DiscountService
	Checkout  services.CheckoutService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// ContainerOption customises container construction.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	logger    *zap.Logger
	publisher services.ReviewPublisher
	clock     func() time.Time
}

// WithLogger routes service-level events through the given logger.
func WithLogger(logger *zap.Logger) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.logger = logger
	}
}

// WithReviewPublisher enables checkout review event publication.
func WithReviewPublisher(publisher services.ReviewPublisher) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.publisher = publisher
	}
}

// WithClock overrides the time source used by services.
func WithClock(clock func() time.Time) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.clock = clock
	}
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory
// registries.
func NewContainer(_ context.Context, cfg config.Config, reg repositories.Registry, opts ...ContainerOption) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	cc := containerConfig{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cc)
		}
	}
	if cc.logger == nil {
		cc.logger = zap.NewNop()
	}

	svc, err := buildServices(reg, cfg, cc)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources held by the repositories.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, cc containerConfig) (Services, error) {
	var svc Services

	resolver, err := services.NewProductResolver(services.ProductResolverDeps{
		Products: reg.Products(),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build product resolver: %w", err)
	}
	svc.Products = resolver

	discountSvc, err := services.NewDiscountService(services.DiscountServiceDeps{
		Discounts: reg.Discounts(),
		Products:  reg.Products(),
		Clock:     cc.clock,
		Logger:    zapEventLogger(cc.logger.Named("discounts")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build discount service: %w", err)
	}
	svc.Discounts = discountSvc

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:           reg.Carts(),
		Products:        resolver,
		Discounts:       discountSvc,
		Shipping:        services.FlatShippingFee(cfg.Checkout.ShippingFlatFee),
		Publisher:       cc.publisher,
		Clock:           cc.clock,
		Logger:          zapEventLogger(cc.logger.Named("checkout")),
		MaxShopGroups:   cfg.Checkout.MaxShopGroups,
		MaxItemsPerShop: cfg.Checkout.MaxItemsPerShop,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	return svc, nil
}

func zapEventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Warn("service event", zFields...)
	}
}
