package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config carries every tunable of the vote pipeline. Fraud weights,
// ranking constants and economy caps are explicit fields so deployments
// can retune them without code changes; defaults reproduce the reference
// ranking order exactly.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Trace    TraceConfig    `mapstructure:"trace"`
	Fraud    FraudConfig    `mapstructure:"fraud"`
	Ranking  RankingConfig  `mapstructure:"ranking"`
	Vote     VoteConfig     `mapstructure:"vote"`
	Economy  EconomyConfig  `mapstructure:"economy"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr" validate:"required"`
	Mode           string        `mapstructure:"mode" validate:"oneof=debug release test"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps" validate:"gt=0"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst" validate:"gt=0"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	DSN    string `mapstructure:"dsn" validate:"required"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type TraceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// FraudConfig holds the signal weights and staging thresholds of the
// composite abuse score. Weights sum to 1.0 so the composite stays in [0,1].
type FraudConfig struct {
	VelocityWeight   float64 `mapstructure:"velocity_weight" validate:"gte=0,lte=1"`
	IPClusterWeight  float64 `mapstructure:"ip_cluster_weight" validate:"gte=0,lte=1"`
	DeviceWeight     float64 `mapstructure:"device_weight" validate:"gte=0,lte=1"`
	ReciprocalWeight float64 `mapstructure:"reciprocal_weight" validate:"gte=0,lte=1"`
	BurstWeight      float64 `mapstructure:"burst_weight" validate:"gte=0,lte=1"`
	AccountAgeWeight float64 `mapstructure:"account_age_weight" validate:"gte=0,lte=1"`
	BehavioralWeight float64 `mapstructure:"behavioral_weight" validate:"gte=0,lte=1"`

	MinuteVoteLimit    int     `mapstructure:"minute_vote_limit" validate:"gt=0"`
	HourVoteLimit      int     `mapstructure:"hour_vote_limit" validate:"gt=0"`
	IPClusterSoftLimit int     `mapstructure:"ip_cluster_soft_limit" validate:"gt=0"`
	IPClusterHardLimit int     `mapstructure:"ip_cluster_hard_limit" validate:"gt=0"`
	DeviceSoftLimit    int     `mapstructure:"device_soft_limit" validate:"gt=0"`
	DeviceHardLimit    int     `mapstructure:"device_hard_limit" validate:"gt=0"`
	BurstSoftLimit     int     `mapstructure:"burst_soft_limit" validate:"gt=0"`
	BurstHardLimit     int     `mapstructure:"burst_hard_limit" validate:"gt=0"`
	FlagThreshold      float64 `mapstructure:"flag_threshold" validate:"gt=0,lte=1"`
	TrustPenalty       int     `mapstructure:"trust_penalty" validate:"gt=0"`
}

// RankingConfig names the ranking constants. Defaults are the observed
// reference values; changing them changes feed order.
type RankingConfig struct {
	VoteWeight    float64 `mapstructure:"vote_weight"`
	ViewWeight    float64 `mapstructure:"view_weight"`
	ShareWeight   float64 `mapstructure:"share_weight"`
	CommentWeight float64 `mapstructure:"comment_weight"`
	Gravity       float64 `mapstructure:"gravity" validate:"gt=0"`
	WilsonZ       float64 `mapstructure:"wilson_z" validate:"gt=0"`
}

type VoteConfig struct {
	DailyLimit     int           `mapstructure:"daily_limit" validate:"gt=0"`
	MinAccountAge  time.Duration `mapstructure:"min_account_age"`
	MinTrustScore  int           `mapstructure:"min_trust_score" validate:"gte=0"`
	UndoWindow     time.Duration `mapstructure:"undo_window" validate:"gt=0"`
}

type EconomyConfig struct {
	VotesPerGem     int `mapstructure:"votes_per_gem" validate:"gt=0"`
	DailyEarnCap    int `mapstructure:"daily_earn_cap" validate:"gt=0"`
	BalanceCap      int `mapstructure:"balance_cap" validate:"gt=0"`
	EarnTrustFloor  int `mapstructure:"earn_trust_floor" validate:"gte=0"`
}

// Load reads config.yaml from the working directory (optional) and the
// environment (VR_ prefix), then validates the result.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("VR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.request_timeout", "5s")
	v.SetDefault("server.rate_limit_rps", 20.0)
	v.SetDefault("server.rate_limit_burst", 40)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "vote_rewards.db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.endpoint", "localhost:4318")

	v.SetDefault("fraud.velocity_weight", 0.20)
	v.SetDefault("fraud.ip_cluster_weight", 0.20)
	v.SetDefault("fraud.device_weight", 0.15)
	v.SetDefault("fraud.reciprocal_weight", 0.15)
	v.SetDefault("fraud.burst_weight", 0.10)
	v.SetDefault("fraud.account_age_weight", 0.10)
	v.SetDefault("fraud.behavioral_weight", 0.10)
	v.SetDefault("fraud.minute_vote_limit", 5)
	v.SetDefault("fraud.hour_vote_limit", 60)
	v.SetDefault("fraud.ip_cluster_soft_limit", 3)
	v.SetDefault("fraud.ip_cluster_hard_limit", 10)
	v.SetDefault("fraud.device_soft_limit", 2)
	v.SetDefault("fraud.device_hard_limit", 8)
	v.SetDefault("fraud.burst_soft_limit", 3)
	v.SetDefault("fraud.burst_hard_limit", 10)
	v.SetDefault("fraud.flag_threshold", 0.7)
	v.SetDefault("fraud.trust_penalty", 5)

	v.SetDefault("ranking.vote_weight", 1.0)
	v.SetDefault("ranking.view_weight", 0.01)
	v.SetDefault("ranking.share_weight", 3.0)
	v.SetDefault("ranking.comment_weight", 2.0)
	v.SetDefault("ranking.gravity", 1.8)
	v.SetDefault("ranking.wilson_z", 1.96)

	v.SetDefault("vote.daily_limit", 100)
	v.SetDefault("vote.min_account_age", "1h")
	v.SetDefault("vote.min_trust_score", 10)
	v.SetDefault("vote.undo_window", "5m")

	v.SetDefault("economy.votes_per_gem", 10)
	v.SetDefault("economy.daily_earn_cap", 50)
	v.SetDefault("economy.balance_cap", 100000)
	v.SetDefault("economy.earn_trust_floor", 20)
}
