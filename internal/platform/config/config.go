package config

import (
	"time"
)

type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Engine   EngineConfig   `yaml:"engine" mapstructure:"engine"`
	Dispatch DispatchConfig `yaml:"dispatch" mapstructure:"dispatch"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Usage    UsageConfig    `yaml:"usage" mapstructure:"usage"`
	Voices   VoicesConfig   `yaml:"voices" mapstructure:"voices"`
	Clone    CloneConfig    `yaml:"clone" mapstructure:"clone"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
}

type ServerConfig struct {
	IP              string        `yaml:"ip" mapstructure:"ip"`
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
}

type LogConfig struct {
	Level string `yaml:"log_level" mapstructure:"log_level"`
	Dir   string `yaml:"log_dir" mapstructure:"log_dir"`
	File  string `yaml:"log_file" mapstructure:"log_file"`
}

// StorageConfig locates the sqlite database shared by the sqlite drivers.
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
	Prefix   string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

type NATSConfig struct {
	URL    string `yaml:"url" mapstructure:"url"`
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
}

type EngineConfig struct {
	Provider      string        `yaml:"provider" mapstructure:"provider"`
	MaxConcurrent int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	Breaker       BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxFailures int           `yaml:"max_failures" mapstructure:"max_failures"`
	RetryAfter  time.Duration `yaml:"retry_after" mapstructure:"retry_after"`
}

type DispatchConfig struct {
	EngineTimeout  time.Duration `yaml:"engine_timeout" mapstructure:"engine_timeout"`
	RetryBackoff   time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	MaxTextChars   int           `yaml:"max_text_chars" mapstructure:"max_text_chars"`
	DefaultFormat  string        `yaml:"default_format" mapstructure:"default_format"`
	DefaultVoice   string        `yaml:"default_voice" mapstructure:"default_voice"`
	DefaultAPIKey  string        `yaml:"default_api_key" mapstructure:"default_api_key"`
	ClientCacheAge time.Duration `yaml:"client_cache_age" mapstructure:"client_cache_age"`
}

type CacheConfig struct {
	MaxEntries int              `yaml:"max_entries" mapstructure:"max_entries"`
	MaxBytes   int64            `yaml:"max_bytes" mapstructure:"max_bytes"`
	TTL        time.Duration    `yaml:"ttl" mapstructure:"ttl"`
	Shards     int              `yaml:"shards" mapstructure:"shards"`
	Store      CacheStoreConfig `yaml:"store" mapstructure:"store"`
}

// CacheStoreConfig selects the durable audio tier: none, redis or nats.
type CacheStoreConfig struct {
	Type  string      `yaml:"type" mapstructure:"type"`
	Redis RedisConfig `yaml:"redis,omitempty" mapstructure:"redis"`
	NATS  NATSConfig  `yaml:"nats,omitempty" mapstructure:"nats"`
}

type UsageConfig struct {
	Store    UsageStoreConfig      `yaml:"store" mapstructure:"store"`
	Tiers    map[string]TierConfig `yaml:"tiers" mapstructure:"tiers"`
	Accounts []AccountConfig       `yaml:"accounts" mapstructure:"accounts"`
}

// UsageStoreConfig selects the ledger driver: memory, sqlite or redis.
type UsageStoreConfig struct {
	Type  string      `yaml:"type" mapstructure:"type"`
	Redis RedisConfig `yaml:"redis,omitempty" mapstructure:"redis"`
}

type TierConfig struct {
	RequestsLimit int64   `yaml:"requests_limit" mapstructure:"requests_limit"`
	Period        string  `yaml:"period" mapstructure:"period"`
	MaxTextChars  int     `yaml:"max_text_chars" mapstructure:"max_text_chars"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
}

type AccountConfig struct {
	Key  string `yaml:"key" mapstructure:"key"`
	Tier string `yaml:"tier" mapstructure:"tier"`
}

type VoicesConfig struct {
	Profiles []VoiceProfileConfig `yaml:"profiles" mapstructure:"profiles"`
}

type VoiceProfileConfig struct {
	ID              string `yaml:"id" mapstructure:"id"`
	Name            string `yaml:"name" mapstructure:"name"`
	Language        string `yaml:"language" mapstructure:"language"`
	Accent          string `yaml:"accent" mapstructure:"accent"`
	Gender          string `yaml:"gender" mapstructure:"gender"`
	Description     string `yaml:"description" mapstructure:"description"`
	SampleText      string `yaml:"sample_text" mapstructure:"sample_text"`
	EngineVoice     string `yaml:"engine_voice" mapstructure:"engine_voice"`
	PitchOffsetHz   int    `yaml:"pitch_offset_hz" mapstructure:"pitch_offset_hz"`
	RateOffsetPct   int    `yaml:"rate_offset_pct" mapstructure:"rate_offset_pct"`
	VolumeOffsetPct int    `yaml:"volume_offset_pct" mapstructure:"volume_offset_pct"`
}

type CloneConfig struct {
	SamplesDir     string `yaml:"samples_dir" mapstructure:"samples_dir"`
	MaxSampleBytes int64  `yaml:"max_sample_bytes" mapstructure:"max_sample_bytes"`
	Workers        int    `yaml:"workers" mapstructure:"workers"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Path      string `yaml:"path" mapstructure:"path"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	// SlowThreshold logs any traced operation at least this slow. Zero disables.
	SlowThreshold time.Duration `yaml:"slow_threshold" mapstructure:"slow_threshold"`
}
