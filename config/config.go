package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Loyalty   LoyaltyConfig   `mapstructure:"loyalty"`
	Assets    AssetsConfig    `mapstructure:"assets"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// ServiceToken authenticates calls from internal collaborators
	// (payment webhook, sync jobs). Requests without it are rejected.
	ServiceToken string `mapstructure:"service_token"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds the leaderboard cache settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig holds zap settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoyaltyConfig carries every tunable of the points engine. Nothing in the
// services hard-codes these numbers; they are injected from here.
type LoyaltyConfig struct {
	// PointsPerDollar converts a paid order total into XP (floor).
	PointsPerDollar int64 `mapstructure:"points_per_dollar"`

	// Tier thresholds in cumulative points. Must be strictly increasing.
	SilverThreshold int64 `mapstructure:"silver_threshold"`
	GoldThreshold   int64 `mapstructure:"gold_threshold"`
	VIPThreshold    int64 `mapstructure:"vip_threshold"`

	// RedemptionTable maps a redeemable point amount to a discount in
	// cents. Keys are strings because they come from yaml/env; Table()
	// returns the parsed form.
	RedemptionTable map[string]int64 `mapstructure:"redemption_table"`

	ReferralXP int64 `mapstructure:"referral_xp"`
	BirthdayXP int64 `mapstructure:"birthday_xp"`

	ReferralCodeLength int `mapstructure:"referral_code_length"`
	DiscountCodeLength int `mapstructure:"discount_code_length"`

	// DiscountValidity is how long a redeemed discount code stays usable.
	DiscountValidity time.Duration `mapstructure:"discount_validity"`

	LeaderboardSize int `mapstructure:"leaderboard_size"`
}

// Table returns the redemption table with numeric keys.
func (l *LoyaltyConfig) Table() (map[int64]int64, error) {
	out := make(map[int64]int64, len(l.RedemptionTable))
	for k, cents := range l.RedemptionTable {
		points, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: redemption_table key %q is not an integer", k)
		}
		out[points] = cents
	}
	return out, nil
}

// AssetsConfig holds R2 object-storage settings for badge icons.
type AssetsConfig struct {
	AccountID       string `mapstructure:"account_id"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	Bucket          string `mapstructure:"bucket"`
	CDNBaseURL      string `mapstructure:"cdn_base_url"`
}

// Enabled reports whether object storage is configured at all. The badge
// catalog works without it; icons just stay empty.
func (c *AssetsConfig) Enabled() bool {
	return c.AccessKeyID != "" && c.AccessKeySecret != "" && c.Bucket != ""
}

// SchedulerConfig toggles the background jobs.
type SchedulerConfig struct {
	BirthdayJobEnabled bool          `mapstructure:"birthday_job_enabled"`
	BirthdayJobHour    int           `mapstructure:"birthday_job_hour"`
	PurgeJobEnabled    bool          `mapstructure:"purge_job_enabled"`
	PurgeInterval      time.Duration `mapstructure:"purge_interval"`
	ReconcileInterval  time.Duration `mapstructure:"reconcile_interval"`
}

// Load reads configuration with precedence env > file > defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 5300)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "loyalty")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("loyalty.points_per_dollar", 1)
	v.SetDefault("loyalty.silver_threshold", 500)
	v.SetDefault("loyalty.gold_threshold", 1500)
	v.SetDefault("loyalty.vip_threshold", 5000)
	v.SetDefault("loyalty.redemption_table", map[string]int64{
		"100": 200,
		"250": 500,
		"500": 1200,
	})
	v.SetDefault("loyalty.referral_xp", 250)
	v.SetDefault("loyalty.birthday_xp", 50)
	v.SetDefault("loyalty.referral_code_length", 10)
	v.SetDefault("loyalty.discount_code_length", 12)
	v.SetDefault("loyalty.discount_validity", "720h") // 30 days
	v.SetDefault("loyalty.leaderboard_size", 20)

	v.SetDefault("scheduler.birthday_job_enabled", true)
	v.SetDefault("scheduler.birthday_job_hour", 6)
	v.SetDefault("scheduler.purge_job_enabled", true)
	v.SetDefault("scheduler.purge_interval", "1h")
	v.SetDefault("scheduler.reconcile_interval", "5m")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LOYALTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No file: defaults plus environment variables.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run on.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be between 1 and 65535")
	}
	l := c.Loyalty
	if l.PointsPerDollar < 0 {
		return fmt.Errorf("config: loyalty.points_per_dollar must not be negative")
	}
	if !(0 < l.SilverThreshold && l.SilverThreshold < l.GoldThreshold && l.GoldThreshold < l.VIPThreshold) {
		return fmt.Errorf("config: tier thresholds must be strictly increasing (silver < gold < vip)")
	}
	if len(l.RedemptionTable) == 0 {
		return fmt.Errorf("config: loyalty.redemption_table must not be empty")
	}
	table, err := l.Table()
	if err != nil {
		return err
	}
	for points, cents := range table {
		if points <= 0 || cents <= 0 {
			return fmt.Errorf("config: redemption_table entries must be positive (got %d -> %d)", points, cents)
		}
	}
	if l.ReferralCodeLength < 6 {
		return fmt.Errorf("config: loyalty.referral_code_length must be at least 6")
	}
	if l.DiscountValidity <= 0 {
		return fmt.Errorf("config: loyalty.discount_validity must be positive")
	}
	if c.Scheduler.BirthdayJobHour < 0 || c.Scheduler.BirthdayJobHour > 23 {
		return fmt.Errorf("config: scheduler.birthday_job_hour must be between 0 and 23")
	}
	return nil
}
