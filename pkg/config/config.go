package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Auction      AuctionConfig
	Decision     DecisionConfig
	Sweep        SweepConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MANDEX_APP_ENV" required:"true"`
	Port         string `envconfig:"MANDEX_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MANDEX_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MANDEX_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MANDEX_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MANDEX_DB_DSN"`
	Driver string `envconfig:"MANDEX_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MANDEX_DB_HOST"`
	LegacyPort     int    `envconfig:"MANDEX_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MANDEX_DB_USER"`
	LegacyPassword string `envconfig:"MANDEX_DB_PASSWORD"`
	LegacyName     string `envconfig:"MANDEX_DB_NAME"`
	LegacySSLMode  string `envconfig:"MANDEX_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MANDEX_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MANDEX_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MANDEX_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MANDEX_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for name, value := range legacyValues {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("database config incomplete: set MANDEX_DB_DSN or %s", strings.Join(missing, ", "))
	}

	db.DSN = fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.LegacyHost,
		db.LegacyPort,
		db.LegacyUser,
		url.QueryEscape(db.LegacyPassword),
		db.LegacyName,
		db.LegacySSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"MANDEX_REDIS_URL"`
	Address      string        `envconfig:"MANDEX_REDIS_ADDR"`
	Password     string        `envconfig:"MANDEX_REDIS_PASSWORD"`
	DB           int           `envconfig:"MANDEX_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MANDEX_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MANDEX_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MANDEX_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MANDEX_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MANDEX_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MANDEX_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MANDEX_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MANDEX_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MANDEX_FEATURE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MANDEX_GCP_PROJECT_ID"`
	ApplicationCredentials string `envconfig:"MANDEX_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"MANDEX_PUBSUB_DOMAIN_TOPIC" default:"mx-domain-events"`
	DomainSubscription string `envconfig:"MANDEX_PUBSUB_DOMAIN_SUBSCRIPTION"`
	SupplierTopic      string `envconfig:"MANDEX_PUBSUB_SUPPLIER_TOPIC" default:"mx-supplier-messages"`
	BuyerTopic         string `envconfig:"MANDEX_PUBSUB_BUYER_TOPIC" default:"mx-buyer-messages"`
}

// AuctionConfig carries the winner-scoring weights and reference values.
type AuctionConfig struct {
	StockConfirmedBonus float64       `envconfig:"MANDEX_AUCTION_STOCK_BONUS" default:"100"`
	PriceWeight         float64       `envconfig:"MANDEX_AUCTION_PRICE_WEIGHT" default:"50"`
	EtaWeight           float64       `envconfig:"MANDEX_AUCTION_ETA_WEIGHT" default:"30"`
	TrustWeight         float64       `envconfig:"MANDEX_AUCTION_TRUST_WEIGHT" default:"20"`
	EtaHorizonHours     float64       `envconfig:"MANDEX_AUCTION_ETA_HORIZON_HOURS" default:"72"`
	DefaultEta          time.Duration `envconfig:"MANDEX_AUCTION_DEFAULT_ETA" default:"24h"`
	BidWindow           time.Duration `envconfig:"MANDEX_AUCTION_BID_WINDOW" default:"2h"`
}

type DecisionConfig struct {
	MaxAttempts    int           `envconfig:"MANDEX_DECISION_MAX_ATTEMPTS" default:"3"`
	InitialBackoff time.Duration `envconfig:"MANDEX_DECISION_INITIAL_BACKOFF" default:"50ms"`
}

type SweepConfig struct {
	Interval      time.Duration `envconfig:"MANDEX_SWEEP_INTERVAL" default:"1m"`
	StaleOrderTTL time.Duration `envconfig:"MANDEX_SWEEP_STALE_ORDER_TTL" default:"72h"`
	LockTTL       time.Duration `envconfig:"MANDEX_SWEEP_LOCK_TTL" default:"5m"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MANDEX_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MANDEX_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MANDEX_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"MANDEX_OUTBOX_RETENTION_DAYS" default:"14"`
}
