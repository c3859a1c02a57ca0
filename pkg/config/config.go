package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is applied to every envconfig lookup.
const EnvPrefix = "BOBBYS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "BOBBYS_DB_DSN"
	EnvDBHost = "BOBBYS_DB_HOST"
	EnvDBUser = "BOBBYS_DB_USER"
	EnvDBName = "BOBBYS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	SignalWire   SignalWireConfig
	Payments     PaymentsConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.SignalWire.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BOBBYS_APP_ENV" required:"true"`
	Port         string `envconfig:"BOBBYS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BOBBYS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BOBBYS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BOBBYS_DB_DSN"`
	Driver string `envconfig:"BOBBYS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BOBBYS_DB_HOST"`
	LegacyPort     int    `envconfig:"BOBBYS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BOBBYS_DB_USER"`
	LegacyPassword string `envconfig:"BOBBYS_DB_PASSWORD"`
	LegacyName     string `envconfig:"BOBBYS_DB_NAME"`
	LegacySSLMode  string `envconfig:"BOBBYS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BOBBYS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BOBBYS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BOBBYS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BOBBYS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BOBBYS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BOBBYS_REDIS_ADDR"`
	Password     string        `envconfig:"BOBBYS_REDIS_PASSWORD"`
	DB           int           `envconfig:"BOBBYS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BOBBYS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BOBBYS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BOBBYS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BOBBYS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BOBBYS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// SignalWireConfig carries telephony credentials plus the payment
// connector callback the Pay verb reports into.
type SignalWireConfig struct {
	SpaceURL            string        `envconfig:"BOBBYS_SIGNALWIRE_SPACE_URL"`
	ProjectID           string        `envconfig:"BOBBYS_SIGNALWIRE_PROJECT_ID"`
	APIToken            string        `envconfig:"BOBBYS_SIGNALWIRE_API_TOKEN"`
	SigningSecret       string        `envconfig:"BOBBYS_SIGNALWIRE_SIGNING_SECRET"`
	PaymentConnectorURL string        `envconfig:"BOBBYS_SIGNALWIRE_PAYMENT_CONNECTOR_URL"`
	FromNumber          string        `envconfig:"BOBBYS_SIGNALWIRE_FROM_NUMBER"`
	HTTPTimeout         time.Duration `envconfig:"BOBBYS_SIGNALWIRE_HTTP_TIMEOUT" default:"10s"`
}

func (s SignalWireConfig) validate() error {
	if s.PaymentConnectorURL == "" {
		return nil
	}
	u, err := url.Parse(s.PaymentConnectorURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid payment connector url %q", s.PaymentConnectorURL)
	}
	return nil
}

// ConnectorURL returns the callback endpoint the gateway posts payment
// status to, defaulting the path when only a base URL is configured.
func (s SignalWireConfig) ConnectorURL() string {
	raw := strings.TrimRight(s.PaymentConnectorURL, "/")
	if raw == "" {
		return ""
	}
	const path = "/api/v1/webhooks/signalwire/payment"
	if strings.HasSuffix(raw, path) {
		return raw
	}
	return raw + path
}

type PaymentsConfig struct {
	Currency       string        `envconfig:"BOBBYS_PAYMENTS_CURRENCY" default:"usd"`
	SessionTTL     time.Duration `envconfig:"BOBBYS_PAYMENTS_SESSION_TTL" default:"30m"`
	CollectTimeout int           `envconfig:"BOBBYS_PAYMENTS_COLLECT_TIMEOUT_SECONDS" default:"10"`
	MaxAttempts    int           `envconfig:"BOBBYS_PAYMENTS_MAX_ATTEMPTS" default:"3"`
	WebhookDedupe  time.Duration `envconfig:"BOBBYS_PAYMENTS_WEBHOOK_DEDUPE_TTL" default:"24h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"BOBBYS_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"BOBBYS_CRON_LOCK_TTL" default:"4m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool `envconfig:"BOBBYS_AUTO_MIGRATE" default:"false"`
	DebugEndpoints bool `envconfig:"BOBBYS_DEBUG_ENDPOINTS" default:"false"`
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
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
