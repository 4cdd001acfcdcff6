package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/horizonsync/authcore"
	"github.com/horizonsync/authcore/obs"
	"github.com/horizonsync/authcore/ratelimit"
)

// config is the root of the authd YAML file. Every value has a default;
// the file and the AUTHD_* environment both override it, environment
// last so secrets can stay out of the file.
type config struct {
	Server   serverConfig   `yaml:"server"`
	Database databaseConfig `yaml:"database"`
	Redis    redisConfig    `yaml:"redis"`
	Auth     authConfig     `yaml:"auth"`
	Limits   limitsConfig   `yaml:"limits"`
	Logging  obs.LogConfig  `yaml:"logging"`
}

type serverConfig struct {
	Listen          string   `yaml:"listen"`
	ReadTimeout     duration `yaml:"read_timeout"`
	WriteTimeout    duration `yaml:"write_timeout"`
	IdleTimeout     duration `yaml:"idle_timeout"`
	ShutdownTimeout duration `yaml:"shutdown_timeout"`
}

type databaseConfig struct {
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

// redisConfig is optional; without an address the login throttle runs
// in process and resets on restart.
type redisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type authConfig struct {
	PrivateKeyFile   string   `yaml:"private_key_file"`
	PublicKeyFile    string   `yaml:"public_key_file"`
	Issuer           string   `yaml:"issuer"`
	AccessTTL        duration `yaml:"access_ttl"`
	RefreshTTL       duration `yaml:"refresh_ttl"`
	BcryptCost       int      `yaml:"bcrypt_cost"`
	LockoutThreshold int      `yaml:"lockout_threshold"`
	LockoutDuration  duration `yaml:"lockout_duration"`
	MFAIssuer        string   `yaml:"mfa_issuer"`
	MaxSessions      int      `yaml:"max_sessions"`
}

type limitsConfig struct {
	HTTPRPS       float64  `yaml:"http_rps"`
	HTTPBurst     int      `yaml:"http_burst"`
	LoginPerEmail int      `yaml:"login_per_email"`
	LoginPerIP    int      `yaml:"login_per_ip"`
	LoginWindow   duration `yaml:"login_window"`
	RefreshLimit  int      `yaml:"refresh_limit"`
	RefreshWindow duration `yaml:"refresh_window"`
}

// duration accepts "30m" style strings in YAML.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

func defaultServiceConfig() *config {
	return &config{
		Server: serverConfig{
			Listen:          ":8080",
			ReadTimeout:     duration(15 * time.Second),
			WriteTimeout:    duration(15 * time.Second),
			IdleTimeout:     duration(60 * time.Second),
			ShutdownTimeout: duration(10 * time.Second),
		},
		Limits: limitsConfig{
			HTTPRPS:   50,
			HTTPBurst: 100,
		},
		Logging: obs.LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// loadConfig reads path (when given), then lets the environment have
// the last word. Validation happens separately so key generation can
// run before the database exists.
func loadConfig(path string) (*config, error) {
	cfg := defaultServiceConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *config) {
	if v := os.Getenv("AUTHD_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := os.Getenv("AUTHD_PG_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("AUTHD_PG_MIGRATE"); v != "" {
		cfg.Database.Migrate, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("AUTHD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("AUTHD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AUTHD_PRIVATE_KEY_FILE"); v != "" {
		cfg.Auth.PrivateKeyFile = v
	}
	if v := os.Getenv("AUTHD_PUBLIC_KEY_FILE"); v != "" {
		cfg.Auth.PublicKeyFile = v
	}
	if v := os.Getenv("AUTHD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AUTHD_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func (c *config) validate() error {
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required (or set AUTHD_PG_DSN)")
	}
	if c.Auth.PrivateKeyFile == "" {
		return errors.New("auth.private_key_file is required (or set AUTHD_PRIVATE_KEY_FILE)")
	}
	return nil
}

// engineConfig translates the service file into the engine's own
// configuration, touching only the knobs the operator actually set.
func engineConfig(c *config, priv, pub []byte) (authcore.Config, error) {
	cfg := authcore.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub

	if c.Auth.Issuer != "" {
		cfg.JWT.Issuer = c.Auth.Issuer
	}
	if c.Auth.AccessTTL > 0 {
		cfg.JWT.AccessTTL = time.Duration(c.Auth.AccessTTL)
	}
	if c.Auth.RefreshTTL > 0 {
		cfg.JWT.RefreshTTL = time.Duration(c.Auth.RefreshTTL)
	}
	if c.Auth.BcryptCost > 0 {
		cfg.Password.Cost = c.Auth.BcryptCost
	}
	if c.Auth.LockoutThreshold > 0 {
		cfg.Lockout.Threshold = c.Auth.LockoutThreshold
	}
	if c.Auth.LockoutDuration > 0 {
		cfg.Lockout.Duration = time.Duration(c.Auth.LockoutDuration)
	}
	if c.Auth.MFAIssuer != "" {
		cfg.MFA.Issuer = c.Auth.MFAIssuer
	}
	if c.Auth.MaxSessions > 0 {
		cfg.Sessions.MaxPerAccount = c.Auth.MaxSessions
	}
	if err := cfg.Validate(); err != nil {
		return authcore.Config{}, err
	}
	return cfg, nil
}

// throttleConfig maps the limits section onto the login throttle,
// keeping the package defaults for anything unset.
func throttleConfig(c *config) ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	if c.Limits.LoginPerEmail > 0 {
		cfg.LoginLimit = c.Limits.LoginPerEmail
	}
	if c.Limits.LoginPerIP > 0 {
		cfg.IPLoginLimit = c.Limits.LoginPerIP
	}
	if c.Limits.LoginWindow > 0 {
		cfg.LoginWindow = time.Duration(c.Limits.LoginWindow)
	}
	if c.Limits.RefreshLimit > 0 {
		cfg.RefreshLimit = c.Limits.RefreshLimit
	}
	if c.Limits.RefreshWindow > 0 {
		cfg.RefreshWindow = time.Duration(c.Limits.RefreshWindow)
	}
	return cfg
}
