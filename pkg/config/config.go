package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	Identity      IdentityConfig
	Bootstrap     BootstrapConfig
	AuthRateLimit AuthRateLimitConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	FeatureFlags  FeatureFlagsConfig
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
	Env          string `envconfig:"STOCKRUN_APP_ENV" required:"true"`
	Port         string `envconfig:"STOCKRUN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOCKRUN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOCKRUN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKRUN_DB_DSN"`
	Driver string `envconfig:"STOCKRUN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOCKRUN_DB_HOST"`
	LegacyPort     int    `envconfig:"STOCKRUN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOCKRUN_DB_USER"`
	LegacyPassword string `envconfig:"STOCKRUN_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOCKRUN_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOCKRUN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOCKRUN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKRUN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKRUN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKRUN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKRUN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOCKRUN_REDIS_ADDR"`
	Password     string        `envconfig:"STOCKRUN_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKRUN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKRUN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKRUN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKRUN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKRUN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKRUN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOCKRUN_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOCKRUN_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"STOCKRUN_JWT_EXPIRATION_MINUTES" default:"60"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"STOCKRUN_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"STOCKRUN_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"STOCKRUN_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"STOCKRUN_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"STOCKRUN_ARGON_KEY_LEN" default:"32"`
}

// IdentityConfig captures the account policy the identity store enforces.
type IdentityConfig struct {
	MinPasswordLength int `envconfig:"STOCKRUN_IDENTITY_MIN_PASSWORD_LENGTH" default:"8"`
}

// BootstrapConfig supplies the optional first-admin credentials from the
// environment. No credential is ever embedded in source; when Password is
// empty a one-time secret is generated and logged at startup.
type BootstrapConfig struct {
	AdminEmail    string `envconfig:"STOCKRUN_BOOTSTRAP_ADMIN_EMAIL"`
	AdminName     string `envconfig:"STOCKRUN_BOOTSTRAP_ADMIN_NAME" default:"Administrator"`
	AdminPassword string `envconfig:"STOCKRUN_BOOTSTRAP_ADMIN_PASSWORD"`
}

func (b BootstrapConfig) Enabled() bool {
	return strings.TrimSpace(b.AdminEmail) != ""
}

type AuthRateLimitConfig struct {
	LoginWindow         time.Duration `envconfig:"STOCKRUN_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit     int           `envconfig:"STOCKRUN_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit        int           `envconfig:"STOCKRUN_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	ProvisionWindow     time.Duration `envconfig:"STOCKRUN_AUTH_RATE_LIMIT_PROVISION_WINDOW" default:"5m"`
	ProvisionEmailLimit int           `envconfig:"STOCKRUN_AUTH_RATE_LIMIT_PROVISION_EMAIL_LIMIT" default:"3"`
	ProvisionIPLimit    int           `envconfig:"STOCKRUN_AUTH_RATE_LIMIT_PROVISION_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOCKRUN_FEATURE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOCKRUN_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOCKRUN_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOCKRUN_GOOGLE_APPLICATION_CREDENTIALS"`
}

// Enabled reports whether the eventing stack should be wired at all.
func (g GCPConfig) Enabled() bool {
	return strings.TrimSpace(g.ProjectID) != ""
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"STOCKRUN_PUBSUB_DOMAIN_TOPIC" default:"sr-domain-events"`
	DomainSubscription string `envconfig:"STOCKRUN_PUBSUB_DOMAIN_SUBSCRIPTION"`
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
