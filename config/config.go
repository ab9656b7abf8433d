package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Security  SecurityConfig  `mapstructure:"security"`
	Social    SocialConfig    `mapstructure:"social"`
	News      NewsConfig      `mapstructure:"news"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Debug    bool   `mapstructure:"debug"`
	AdminKey string `mapstructure:"admin_key"`
	// AdminIPs restricts /api/admin to these client IPs. Empty allows all.
	AdminIPs []string `mapstructure:"admin_ips"`
}

type DatabaseConfig struct {
	Mode        string        `mapstructure:"mode"` // sqlite | mysql | postgres
	SQLitePath  string        `mapstructure:"sqlite_path"`
	MySQLDSN    string        `mapstructure:"mysql_dsn"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLife     time.Duration `mapstructure:"max_life"`
	// SlowQuery is the threshold above which a statement is logged at warn.
	SlowQuery  time.Duration `mapstructure:"slow_query"`
	LogQueries bool          `mapstructure:"log_queries"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// WriteRateRPS limits each user's friend requests, posts, reports and
	// group joins. Zero disables the limit.
	WriteRateRPS   float64 `mapstructure:"write_rate_rps"`
	WriteRateBurst int     `mapstructure:"write_rate_burst"`
}

// SocialConfig holds the policy switches of the social graph core.
type SocialConfig struct {
	AllowReRequestAfterReject bool          `mapstructure:"allow_rerequest_after_reject"`
	TransferMovesCreator      bool          `mapstructure:"transfer_moves_creator"`
	MinReportReason           int           `mapstructure:"min_report_reason"`
	FeedLimit                 int           `mapstructure:"feed_limit"`
	LockWait                  time.Duration `mapstructure:"lock_wait"`
	// MaskedWords are starred out of post content before it is stored.
	MaskedWords []string `mapstructure:"masked_words"`
}

type NewsConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

// BootstrapConfig lists the privileged accounts ensured at startup.
type BootstrapConfig struct {
	Accounts []BootstrapAccount `mapstructure:"accounts"`
}

type BootstrapAccount struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Role     string `mapstructure:"role"`
}

// Load reads config from the given YAML file path. Environment variables
// prefixed with SOCIAL_ override file values (SOCIAL_DATABASE_MODE=mysql).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("social")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration produced by the defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/social.db")
	v.SetDefault("database.max_open", 50)
	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.max_life", "1h")
	v.SetDefault("database.slow_query", "200ms")
	v.SetDefault("database.log_queries", false)
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.bcrypt_cost", 12)
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("security.write_rate_rps", 2)
	v.SetDefault("security.write_rate_burst", 20)
	v.SetDefault("social.allow_rerequest_after_reject", true)
	v.SetDefault("social.transfer_moves_creator", true)
	v.SetDefault("social.min_report_reason", 10)
	v.SetDefault("social.feed_limit", 30)
	v.SetDefault("social.lock_wait", "3s")
	v.SetDefault("news.retention", "168h")
	v.SetDefault("news.prune_interval", "1h")
}
