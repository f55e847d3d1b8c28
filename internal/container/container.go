package container

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mivoto/internal/config"
	"mivoto/internal/ledger"
	"mivoto/internal/repository"
	"mivoto/internal/service"
	"mivoto/internal/service/identity"
	"mivoto/pkg/credential"
	"mivoto/pkg/database"
	"mivoto/pkg/hashing"
	"mivoto/pkg/logger"
	"mivoto/pkg/redis"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *database.PostgresDB
	RedisClient *redis.Client
	Services    *service.Services
	Exchanger   identity.CodeExchanger

	ethereum *ledger.Ethereum
}

// New creates a new dependency injection container. Postgres and Redis are
// optional: without DATABASE_URL the in-memory stores are used, and
// without Redis caching and the cast lock are skipped.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: log}

	hasher, err := hashing.New(cfg.SubjectPepper, cfg.TokenPepper)
	if err != nil {
		return nil, err
	}
	codec, err := credential.NewCodec(cfg.CredentialSecret)
	if err != nil {
		return nil, err
	}

	repos, err := c.initRepositories(ctx)
	if err != nil {
		return nil, err
	}
	c.initRedis(ctx)

	backend, err := c.initLedger(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}

	verifier, err := identity.NewVerifier(ctx, c.identityConfig(), log.Component("identity"))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize identity verifier: %w", err)
	}
	c.Exchanger = identity.NewCodeExchanger(c.identityConfig())

	policy := ledger.RetryPolicy{
		MaxAttempts:    cfg.Ledger.MaxAttempts,
		InitialBackoff: cfg.Ledger.InitialBackoff,
		Multiplier:     2.0,
	}
	gateway := ledger.NewGateway(backend, policy, log.Component("ledger"))

	cache := service.NewCacheService(c.RedisClient, log.Component("cache"))
	audit := service.NewAuditService(repos.Audit, log.Component("audit"))

	eligibility := service.NewEligibilityService(verifier, hasher, codec, gateway, repos.Eligibility, audit, cfg.EligibilityTTL, log.Component("eligibility"))
	ballots := service.NewBallotService(repos, cache, log.Component("ballots"))

	c.Services = &service.Services{
		Eligibility: eligibility,
		Voting:      service.NewVotingService(ballots, repos, eligibility, hasher, gateway, cache, audit, log.Component("voting")),
		Tally:       service.NewTallyService(ballots, repos, hasher, cache, audit, log.Component("tally")),
		Ballots:     ballots,
	}

	log.Info("Container initialized",
		zap.String("environment", cfg.Environment),
		zap.String("ledger_mode", cfg.Ledger.Mode),
		zap.String("identity_provider", cfg.Identity.Provider),
		zap.Bool("postgres", c.DB != nil),
		zap.Bool("redis", c.RedisClient != nil))

	return c, nil
}

func (c *Container) initRepositories(ctx context.Context) (*repository.Repositories, error) {
	if c.Config.DatabaseURL == "" {
		if !c.Config.IsDevelopment() && c.Config.Environment != config.EnvTest {
			return nil, fmt.Errorf("DATABASE_URL is required in %s", c.Config.Environment)
		}
		c.Logger.Warn("DATABASE_URL not configured, using in-memory stores")

		catalog := repository.NewMemoryCatalog()
		if c.Config.SeedDemoData {
			SeedDemoCatalog(catalog, time.Now())
			c.Logger.Info("Seeded demo ballot into in-memory catalog")
		}
		return repository.NewMemoryRepositories(catalog), nil
	}

	db, err := database.NewPostgresDB(ctx, c.Config.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DB = db
	c.Logger.Info("Database connection pool initialized")

	return repository.NewPostgresRepositories(db), nil
}

func (c *Container) initRedis(ctx context.Context) {
	if c.Config.RedisURL == "" {
		c.Logger.Info("Redis URL not configured, proceeding without caching")
		return
	}

	client, err := redis.NewClient(ctx, c.Config.RedisURL, c.Config.Environment, c.Logger.Component("redis"))
	if err != nil {
		c.Logger.WithError(err).Warn("Failed to initialize Redis client, proceeding without caching")
		return
	}
	c.RedisClient = client
	c.Logger.Info("Redis client initialized successfully")
}

func (c *Container) initLedger(ctx context.Context) (ledger.Ledger, error) {
	lc := c.Config.Ledger
	if lc.Mode != config.LedgerModeEthereum {
		c.Logger.Warn("Using simulated ledger, votes are not anchored on chain")
		return ledger.NewSimulated(), nil
	}

	eth, err := ledger.NewEthereum(ctx, ledger.EthereumConfig{
		RPCURL:          lc.RPCURL,
		ContractAddress: lc.ContractAddress,
		PrivateKeyHex:   lc.PrivateKey,
		ChainID:         lc.ChainID,
		GasPriceWei:     lc.GasPriceWei,
		GasLimit:        lc.GasLimit,
		PollInterval:    lc.PollInterval,
		PollAttempts:    lc.PollAttempts,
		FromBlock:       lc.FromBlock,
	}, c.Logger.Component("ethereum"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ethereum ledger: %w", err)
	}
	c.ethereum = eth
	return eth, nil
}

func (c *Container) identityConfig() identity.Config {
	ic := c.Config.Identity
	return identity.Config{
		Provider:     ic.Provider,
		JWTSecret:    ic.JWTSecret,
		JWTIssuer:    ic.JWTIssuer,
		JWTAudience:  ic.JWTAudience,
		ClientID:     ic.GoogleClientID,
		ClientSecret: ic.GoogleClientSecret,
		RedirectURL:  ic.OAuthRedirectURL,
	}
}

// Close releases the ledger connection. Database and Redis are closed by
// the caller during graceful shutdown.
func (c *Container) Close() {
	if c.ethereum != nil {
		c.ethereum.Close()
		c.ethereum = nil
	}
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// GetDB returns the Postgres pool (nil with in-memory stores)
func (c *Container) GetDB() *database.PostgresDB {
	return c.DB
}
