package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "SOAPSTOCK"

type Config struct {
	App      AppConfig
	Remote   RemoteConfig
	Local    LocalConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Network  NetworkConfig
	Geocode  GeocodeConfig
	Auth     AuthConfig
	Business BusinessConfig
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg.Auth.Secret = strings.TrimSpace(cfg.Auth.Secret)
	cfg.Auth.OperatorPassword = strings.TrimSpace(cfg.Auth.OperatorPassword)
	return cfg, nil
}

type AppConfig struct {
	Env           string `envconfig:"SOAPSTOCK_APP_ENV" default:"dev"`
	Port          string `envconfig:"SOAPSTOCK_PORT" default:"8080"`
	AllowedOrigin string `envconfig:"SOAPSTOCK_ALLOWED_ORIGIN" default:"http://127.0.0.1:5173"`
	LogLevel      string `envconfig:"SOAPSTOCK_LOG_LEVEL" default:"info"`
	LogFormat     string `envconfig:"SOAPSTOCK_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, "dev")
}

type RemoteConfig struct {
	DatabaseURL     string        `envconfig:"SOAPSTOCK_DATABASE_URL"`
	AutoMigrate     bool          `envconfig:"SOAPSTOCK_DB_AUTO_MIGRATE" default:"true"`
	MaxOpenConns    int           `envconfig:"SOAPSTOCK_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"SOAPSTOCK_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"SOAPSTOCK_DB_CONN_MAX_LIFETIME" default:"30m"`
}

type LocalConfig struct {
	Path string `envconfig:"SOAPSTOCK_LOCAL_DB_PATH" default:"soapstock-local.db"`
}

type RedisConfig struct {
	Addr     string        `envconfig:"SOAPSTOCK_REDIS_ADDR"`
	Password string        `envconfig:"SOAPSTOCK_REDIS_PASSWORD"`
	DB       int           `envconfig:"SOAPSTOCK_REDIS_DB" default:"0"`
	LockTTL  time.Duration `envconfig:"SOAPSTOCK_REDIS_LOCK_TTL" default:"10s"`
}

// StorageConfig pins individual entities to local-only storage. Resolved
// once at startup.
type StorageConfig struct {
	SalesRemote        bool `envconfig:"SOAPSTOCK_SALES_REMOTE" default:"true"`
	OrdersRemote       bool `envconfig:"SOAPSTOCK_ORDERS_REMOTE" default:"true"`
	SupermarketsRemote bool `envconfig:"SOAPSTOCK_SUPERMARKETS_REMOTE" default:"true"`
	// StockRemote routes both stock history and fragrance levels.
	StockRemote bool `envconfig:"SOAPSTOCK_STOCK_REMOTE" default:"true"`
}

type NetworkConfig struct {
	ProbeURL      string        `envconfig:"SOAPSTOCK_PROBE_URL"`
	ProbeTimeout  time.Duration `envconfig:"SOAPSTOCK_PROBE_TIMEOUT" default:"5s"`
	ProbeInterval time.Duration `envconfig:"SOAPSTOCK_PROBE_INTERVAL" default:"15s"`
	InitialOnline bool          `envconfig:"SOAPSTOCK_INITIAL_ONLINE" default:"false"`
}

type GeocodeConfig struct {
	BaseURL    string        `envconfig:"SOAPSTOCK_GEOCODE_URL" default:"https://nominatim.openstreetmap.org"`
	UserAgent  string        `envconfig:"SOAPSTOCK_GEOCODE_USER_AGENT" default:"soapstock/1.0"`
	Timeout    time.Duration `envconfig:"SOAPSTOCK_GEOCODE_TIMEOUT" default:"5s"`
	DefaultLat float64       `envconfig:"SOAPSTOCK_DEFAULT_LAT" default:"36.7538"`
	DefaultLng float64       `envconfig:"SOAPSTOCK_DEFAULT_LNG" default:"3.0588"`
}

type AuthConfig struct {
	Secret           string        `envconfig:"SOAPSTOCK_AUTH_SECRET"`
	TokenTTL         time.Duration `envconfig:"SOAPSTOCK_TOKEN_TTL" default:"8h"`
	OperatorUsername string        `envconfig:"SOAPSTOCK_OPERATOR_USERNAME" default:"admin"`
	OperatorPassword string        `envconfig:"SOAPSTOCK_OPERATOR_PASSWORD"`
}

type BusinessConfig struct {
	MaxStockPieces int    `envconfig:"SOAPSTOCK_MAX_STOCK_PIECES" default:"2700"`
	PhoneRegion    string `envconfig:"SOAPSTOCK_PHONE_REGION" default:"DZ"`
}

// Validate rejects configurations the server must not start with.
func (c Config) Validate() error {
	var errs []error
	if len(c.Auth.Secret) < 32 {
		errs = append(errs, errors.New("SOAPSTOCK_AUTH_SECRET must be set and at least 32 characters"))
	}
	if len(c.Auth.OperatorPassword) < 8 {
		errs = append(errs, errors.New("SOAPSTOCK_OPERATOR_PASSWORD must be set and at least 8 characters"))
	}
	if (c.Storage.SalesRemote || c.Storage.OrdersRemote) && !c.Storage.SupermarketsRemote {
		errs = append(errs, errors.New("SOAPSTOCK_SUPERMARKETS_REMOTE must be true while sales or orders are remote"))
	}
	if c.Business.MaxStockPieces < 0 {
		errs = append(errs, errors.New("SOAPSTOCK_MAX_STOCK_PIECES must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.App.Port)
}
