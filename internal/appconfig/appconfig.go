// Package appconfig loads server settings from config/config.yaml and
// PASSGATE_* environment variables.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/MrEthical07/passgate"
	"github.com/MrEthical07/passgate/jwt"
	"github.com/MrEthical07/passgate/password"
)

const EnvPrefix = "PASSGATE"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Store   StoreConfig   `mapstructure:"store"`
	SMTP    SMTPConfig    `mapstructure:"smtp"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Admin   AdminConfig   `mapstructure:"admin"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit is requests per minute per client IP. Zero disables it.
	RateLimit int `mapstructure:"rate_limit"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

type StoreConfig struct {
	// Driver is memory, redis or postgres.
	Driver        string `mapstructure:"driver"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
	DatabaseURL   string `mapstructure:"database_url"`
	// Migrate applies the embedded schema on startup.
	Migrate bool `mapstructure:"migrate"`
}

// SMTPConfig leaves Host empty to log notices instead of sending them.
type SMTPConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	From        string        `mapstructure:"from"`
	Timezone    string        `mapstructure:"timezone"`
	QueueSize   int           `mapstructure:"queue_size"`
	DropIfFull  bool          `mapstructure:"drop_if_full"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type JWTConfig struct {
	Method string `mapstructure:"method"`
	// Secret is the hs256 key.
	Secret         string        `mapstructure:"secret"`
	PrivateKeyFile string        `mapstructure:"private_key_file"`
	PublicKeyFile  string        `mapstructure:"public_key_file"`
	Issuer         string        `mapstructure:"issuer"`
	Audience       string        `mapstructure:"audience"`
	KeyID          string        `mapstructure:"key_id"`
	Leeway         time.Duration `mapstructure:"leeway"`
	AccessTTL      time.Duration `mapstructure:"access_ttl"`
	VerifyTTL      time.Duration `mapstructure:"verify_ttl"`
}

type LockoutTier struct {
	Duration time.Duration `mapstructure:"duration"`
	Attempts int           `mapstructure:"attempts"`
}

type AuthConfig struct {
	CodeTTL        time.Duration `mapstructure:"code_ttl"`
	ResetCodeTTL   time.Duration `mapstructure:"reset_code_ttl"`
	Digits         int           `mapstructure:"digits"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetainedCodes  int           `mapstructure:"retained_codes"`
	SplitMode      bool          `mapstructure:"split_mode"`
	Bypass         bool          `mapstructure:"bypass"`
	HistorySize    int           `mapstructure:"history_size"`
	HashAlgorithm  string        `mapstructure:"hash_algorithm"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	UpgradeOnLogin bool          `mapstructure:"upgrade_on_login"`
	// Lockout replaces the default tier table when set.
	Lockout []LockoutTier `mapstructure:"lockout"`
}

// AdminConfig seeds the super-admin when Email is set.
type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Name     string `mapstructure:"name"`
	Password string `mapstructure:"password"`
	Role     string `mapstructure:"role"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Latency bool   `mapstructure:"latency"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	engine := passgate.DefaultConfig()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 120)

	v.SetDefault("log.development", false)
	v.SetDefault("log.level", "info")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", "passgate")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.migrate", true)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "no-reply@localhost")
	v.SetDefault("smtp.timezone", "UTC")
	v.SetDefault("smtp.queue_size", 256)
	v.SetDefault("smtp.drop_if_full", true)
	v.SetDefault("smtp.send_timeout", 15*time.Second)

	v.SetDefault("jwt.method", string(jwt.MethodEd25519))
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.private_key_file", "")
	v.SetDefault("jwt.public_key_file", "")
	v.SetDefault("jwt.issuer", engine.Tokens.Issuer)
	v.SetDefault("jwt.audience", "")
	v.SetDefault("jwt.key_id", "")
	v.SetDefault("jwt.leeway", time.Duration(0))
	v.SetDefault("jwt.access_ttl", engine.Tokens.AccessTTL)
	v.SetDefault("jwt.verify_ttl", engine.Tokens.VerifyTTL)

	v.SetDefault("auth.code_ttl", engine.TwoFactor.CodeTTL)
	v.SetDefault("auth.reset_code_ttl", engine.TwoFactor.ResetCodeTTL)
	v.SetDefault("auth.digits", engine.TwoFactor.Digits)
	v.SetDefault("auth.max_attempts", engine.TwoFactor.MaxAttempts)
	v.SetDefault("auth.retained_codes", engine.TwoFactor.RetainedCodes)
	v.SetDefault("auth.split_mode", false)
	v.SetDefault("auth.bypass", false)
	v.SetDefault("auth.history_size", engine.Password.HistorySize)
	v.SetDefault("auth.hash_algorithm", string(engine.Password.Algorithm))
	v.SetDefault("auth.bcrypt_cost", engine.Password.BcryptCost)
	v.SetDefault("auth.upgrade_on_login", engine.Password.UpgradeOnLogin)

	v.SetDefault("admin.email", "")
	v.SetDefault("admin.name", "Super Admin")
	v.SetDefault("admin.password", "")
	v.SetDefault("admin.role", "super_admin")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.latency", false)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads path, or config/config.yaml when path is empty. A missing
// default file is not an error; environment variables such as
// PASSGATE_STORE_DRIVER override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("appconfig: read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("appconfig: decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the infrastructure settings. Engine settings are checked
// by passgate.Config.Validate.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "redis":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return errors.New("appconfig: store.database_url is required for postgres")
		}
	default:
		return fmt.Errorf("appconfig: unknown store.driver %q", c.Store.Driver)
	}

	switch jwt.SigningMethod(c.JWT.Method) {
	case jwt.MethodHS256:
		if c.JWT.Secret == "" {
			return errors.New("appconfig: jwt.secret is required for hs256")
		}
	case jwt.MethodEd25519:
		if c.JWT.PrivateKeyFile == "" {
			return errors.New("appconfig: jwt.private_key_file is required for ed25519")
		}
	default:
		return fmt.Errorf("appconfig: unknown jwt.method %q", c.JWT.Method)
	}

	if c.SMTP.Host != "" && c.SMTP.Port <= 0 {
		return errors.New("appconfig: smtp.port must be > 0")
	}
	if c.Admin.Email != "" && c.Admin.Password == "" {
		return errors.New("appconfig: admin.password is required with admin.email")
	}
	return nil
}

// Engine builds the engine configuration, reading key files from disk.
func (c *Config) Engine() (passgate.Config, error) {
	cfg := passgate.DefaultConfig()

	cfg.Tokens.SigningMethod = jwt.SigningMethod(c.JWT.Method)
	cfg.Tokens.Issuer = c.JWT.Issuer
	cfg.Tokens.Audience = c.JWT.Audience
	cfg.Tokens.KeyID = c.JWT.KeyID
	cfg.Tokens.Leeway = c.JWT.Leeway
	cfg.Tokens.AccessTTL = c.JWT.AccessTTL
	cfg.Tokens.VerifyTTL = c.JWT.VerifyTTL

	switch cfg.Tokens.SigningMethod {
	case jwt.MethodHS256:
		cfg.Tokens.PrivateKey = []byte(c.JWT.Secret)
	case jwt.MethodEd25519:
		priv, err := os.ReadFile(c.JWT.PrivateKeyFile)
		if err != nil {
			return passgate.Config{}, fmt.Errorf("appconfig: read private key: %w", err)
		}
		cfg.Tokens.PrivateKey = priv
		if c.JWT.PublicKeyFile != "" {
			pub, err := os.ReadFile(c.JWT.PublicKeyFile)
			if err != nil {
				return passgate.Config{}, fmt.Errorf("appconfig: read public key: %w", err)
			}
			cfg.Tokens.PublicKey = pub
		}
	}

	cfg.TwoFactor.CodeTTL = c.Auth.CodeTTL
	cfg.TwoFactor.ResetCodeTTL = c.Auth.ResetCodeTTL
	cfg.TwoFactor.Digits = c.Auth.Digits
	cfg.TwoFactor.MaxAttempts = c.Auth.MaxAttempts
	cfg.TwoFactor.RetainedCodes = c.Auth.RetainedCodes
	cfg.TwoFactor.SplitMode = c.Auth.SplitMode
	cfg.TwoFactor.Bypass = c.Auth.Bypass

	cfg.Password.HistorySize = c.Auth.HistorySize
	cfg.Password.Algorithm = password.Algorithm(c.Auth.HashAlgorithm)
	cfg.Password.BcryptCost = c.Auth.BcryptCost
	cfg.Password.UpgradeOnLogin = c.Auth.UpgradeOnLogin

	if len(c.Auth.Lockout) > 0 {
		cfg.Lockout.Tiers = make([]passgate.LockoutTier, 0, len(c.Auth.Lockout))
		for _, tier := range c.Auth.Lockout {
			cfg.Lockout.Tiers = append(cfg.Lockout.Tiers, passgate.LockoutTier{Duration: tier.Duration, AttemptLimit: tier.Attempts})
		}
	}

	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Latency

	if err := cfg.Validate(); err != nil {
		return passgate.Config{}, fmt.Errorf("appconfig: %w", err)
	}
	return cfg, nil
}

// Location resolves smtp.timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.SMTP.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.SMTP.Timezone)
	if err != nil {
		return nil, fmt.Errorf("appconfig: smtp.timezone: %w", err)
	}
	return loc, nil
}
