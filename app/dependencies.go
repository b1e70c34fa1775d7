// Package app is the central wiring point for dependency injection.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fleetrent/admin-gateway/access"
	"github.com/fleetrent/admin-gateway/config"
	"github.com/fleetrent/admin-gateway/descriptor"
	"github.com/fleetrent/admin-gateway/gateway"
	"github.com/fleetrent/admin-gateway/identity"
	"github.com/fleetrent/admin-gateway/policy"
	"github.com/fleetrent/admin-gateway/schema"
	"github.com/fleetrent/admin-gateway/storage/postgres"
)

// Dependencies holds all application dependencies.
type Dependencies struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *postgres.DB

	Entities *descriptor.Registry
	Policies *policy.Registry

	Store     *postgres.Store
	Engine    *access.Engine
	Validator *schema.Validator

	AuthMiddleware *identity.Middleware
	Gateway        *gateway.Gateway
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initRegistries(cfg); err != nil {
		return nil, err
	}
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, err
	}
	deps.initGateway(cfg)

	logger.Info("all dependencies initialized",
		zap.Strings("entities", deps.Entities.Names()),
		zap.Int("policy_rules", deps.Policies.Len()))
	return deps, nil
}

// initRegistries loads the boot-time descriptor and policy files. Any
// unknown entity, relation, field type, or operation fails here, before the
// server accepts a request.
func (d *Dependencies) initRegistries(cfg *config.Config) error {
	entities, err := descriptor.LoadFile(cfg.Gateway.DescriptorFile)
	if err != nil {
		return fmt.Errorf("failed to load entity descriptors: %w", err)
	}
	d.Entities = entities

	policies, err := policy.LoadFile(cfg.Gateway.PolicyFile, entities)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	d.Policies = policies

	return nil
}

// initDatabase initializes the PostgreSQL connection pool and verifies it.
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	db, err := postgres.NewDB(cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	d.DB = db

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

// initGateway wires the decision engine, translator collaborators, and the
// resource gateway itself.
func (d *Dependencies) initGateway(cfg *config.Config) {
	d.Store = postgres.NewStore(d.DB, d.Entities, d.Logger)
	d.Engine = access.NewEngine(d.Policies, d.Entities, d.Store, d.Logger)
	d.Validator = schema.NewValidator()

	provider := identity.NewJWTProvider(cfg.Auth)
	d.AuthMiddleware = identity.NewMiddleware(provider, d.Logger)

	d.Gateway = gateway.New(
		cfg.Gateway.Service,
		d.Entities,
		d.Engine,
		d.Store,
		d.Validator,
		cfg.Gateway.CallTimeout,
		d.Logger,
	)
}

// Close releases held resources.
func (d *Dependencies) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
