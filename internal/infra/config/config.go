package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/arklim/payroll-access/internal/core/domain"
)

const envPrefix = "PAYROLL"

type AppConfig struct {
	App         AppSettings         `mapstructure:"app"`
	Postgres    PostgresSettings    `mapstructure:"postgres"`
	Redis       RedisSettings       `mapstructure:"redis"`
	Kafka       KafkaSettings       `mapstructure:"kafka"`
	Identity    IdentitySettings    `mapstructure:"identity"`
	Telemetry   TelemetrySettings   `mapstructure:"telemetry"`
	RateLimit   RateLimitSettings   `mapstructure:"rate_limit"`
	Argon2      Argon2Settings      `mapstructure:"argon2"`
	Security    SecuritySettings    `mapstructure:"security"`
	Permissions PermissionsSettings `mapstructure:"permissions"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	Schema            string        `mapstructure:"schema"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection used by the login throttle.
type RedisSettings struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures the producer and the role-change consumer group.
type KafkaSettings struct {
	Brokers       []string `mapstructure:"brokers"`
	TopicPrefix   string   `mapstructure:"topic_prefix"`
	Async         bool     `mapstructure:"async"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

// RateLimitSettings configures per-address sliding windows.
type RateLimitSettings struct {
	LoginWindow               time.Duration `mapstructure:"login_window"`
	LoginMaxAttempts          int           `mapstructure:"login_max_attempts"`
	PasswordChangeWindow      time.Duration `mapstructure:"password_change_window"`
	PasswordChangeMaxAttempts int           `mapstructure:"password_change_max_attempts"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// IdentitySettings describes how bearer credentials from the identity provider are verified.
// Either a shared HMAC secret or a directory of RSA public keys must be configured.
type IdentitySettings struct {
	Issuer        string   `mapstructure:"issuer"`
	Audience      []string `mapstructure:"audience"`
	HMACSecret    string   `mapstructure:"hmac_secret"`
	PublicKeysDir string   `mapstructure:"public_keys_dir"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
	Enabled      bool    `mapstructure:"enabled"`
}

// SecuritySettings mirrors domain.SecuritySettings for file and env loading.
type SecuritySettings struct {
	MaxFailedAttempts      int           `mapstructure:"max_failed_attempts"`
	LockoutDurationMinutes int           `mapstructure:"lockout_duration_minutes"`
	AutoUnlock             bool          `mapstructure:"auto_unlock"`
	PasswordMinLength      int           `mapstructure:"password_min_length"`
	PasswordMaxLength      int           `mapstructure:"password_max_length"`
	RequireUppercase       bool          `mapstructure:"require_uppercase"`
	RequireLowercase       bool          `mapstructure:"require_lowercase"`
	RequireNumbers         bool          `mapstructure:"require_numbers"`
	RequireSpecialChars    bool          `mapstructure:"require_special_chars"`
	EnableComplexity       bool          `mapstructure:"enable_complexity"`
	PasswordHistoryLimit   int           `mapstructure:"password_history_limit"`
	MinPasswordAgeHours    int           `mapstructure:"min_password_age_hours"`
	MinStrengthScore       int           `mapstructure:"min_strength_score"`
	SettingsCacheTTL       time.Duration `mapstructure:"settings_cache_ttl"`

	// LoginFailureFloor is the minimum duration of a rejected login.
	LoginFailureFloor time.Duration `mapstructure:"login_failure_floor"`
}

// Domain converts the loaded values into normalized domain settings.
func (s SecuritySettings) Domain() domain.SecuritySettings {
	return domain.SecuritySettings{
		MaxFailedAttempts:      s.MaxFailedAttempts,
		LockoutDurationMinutes: s.LockoutDurationMinutes,
		AutoUnlock:             s.AutoUnlock,
		PasswordMinLength:      s.PasswordMinLength,
		PasswordMaxLength:      s.PasswordMaxLength,
		RequireUppercase:       s.RequireUppercase,
		RequireLowercase:       s.RequireLowercase,
		RequireNumbers:         s.RequireNumbers,
		RequireSpecialChars:    s.RequireSpecialChars,
		EnableComplexity:       s.EnableComplexity,
		PasswordHistoryLimit:   s.PasswordHistoryLimit,
		MinPasswordAgeHours:    s.MinPasswordAgeHours,
		MinStrengthScore:       s.MinStrengthScore,
	}.Normalize()
}

type PermissionsSettings struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.cors_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.schema",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.rate_limit_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"kafka.consumer_group",
		"identity.issuer",
		"identity.audience",
		"identity.hmac_secret",
		"identity.public_keys_dir",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"telemetry.enabled",
		"rate_limit.login_window",
		"rate_limit.login_max_attempts",
		"rate_limit.password_change_window",
		"rate_limit.password_change_max_attempts",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"security.max_failed_attempts",
		"security.lockout_duration_minutes",
		"security.auto_unlock",
		"security.password_min_length",
		"security.password_max_length",
		"security.require_uppercase",
		"security.require_lowercase",
		"security.require_numbers",
		"security.require_special_chars",
		"security.enable_complexity",
		"security.password_history_limit",
		"security.min_password_age_hours",
		"security.min_strength_score",
		"security.settings_cache_ttl",
		"security.login_failure_floor",
		"permissions.cache_ttl",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "payroll-access")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.cors_origins", []string{})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "payroll")
	v.SetDefault("postgres.password", "payroll_password")
	v.SetDefault("postgres.database", "payroll")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.schema", "payroll")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.rate_limit_prefix", "payroll:rate-limit")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "payroll")
	v.SetDefault("kafka.async", true)
	v.SetDefault("kafka.consumer_group", "payroll-access-cache")

	v.SetDefault("identity.issuer", "")
	v.SetDefault("identity.audience", []string{})
	v.SetDefault("identity.hmac_secret", "")
	v.SetDefault("identity.public_keys_dir", "")

	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "payroll-access")
	v.SetDefault("telemetry.sampling_rate", 1.0)
	v.SetDefault("telemetry.enabled", false)

	// 5 attempts per 15 minutes per client address
	v.SetDefault("rate_limit.login_window", "15m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.password_change_window", "15m")
	v.SetDefault("rate_limit.password_change_max_attempts", 10)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("security.max_failed_attempts", domain.DefaultMaxFailedAttempts)
	v.SetDefault("security.lockout_duration_minutes", domain.DefaultLockoutDurationMinutes)
	v.SetDefault("security.auto_unlock", true)
	v.SetDefault("security.password_min_length", domain.DefaultPasswordMinLength)
	v.SetDefault("security.password_max_length", domain.DefaultPasswordMaxLength)
	v.SetDefault("security.require_uppercase", true)
	v.SetDefault("security.require_lowercase", true)
	v.SetDefault("security.require_numbers", true)
	v.SetDefault("security.require_special_chars", true)
	v.SetDefault("security.enable_complexity", true)
	v.SetDefault("security.password_history_limit", domain.DefaultPasswordHistoryLimit)
	v.SetDefault("security.min_password_age_hours", domain.DefaultMinPasswordAgeHours)
	v.SetDefault("security.min_strength_score", 0)
	v.SetDefault("security.settings_cache_ttl", "1m")
	v.SetDefault("security.login_failure_floor", "400ms")

	v.SetDefault("permissions.cache_ttl", "5m")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
