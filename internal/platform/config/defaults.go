package config

import "time"

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			IP:              "0.0.0.0",
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
			File:  "server.log",
		},
		Storage: StorageConfig{
			SQLitePath: "./data/odiadev-tts.db",
		},
		Engine: EngineConfig{
			Provider:      "edge",
			MaxConcurrent: 16,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				RetryAfter:  30 * time.Second,
			},
		},
		Dispatch: DispatchConfig{
			EngineTimeout:  20 * time.Second,
			RetryBackoff:   500 * time.Millisecond,
			MaxTextChars:   5000,
			DefaultFormat:  "wav",
			DefaultVoice:   "en-NG-EzinneNeural",
			DefaultAPIKey:  "demo",
			ClientCacheAge: time.Hour,
		},
		Cache: CacheConfig{
			MaxEntries: 2048,
			MaxBytes:   256 << 20,
			TTL:        24 * time.Hour,
			Shards:     16,
			Store: CacheStoreConfig{
				Type: "none",
				Redis: RedisConfig{
					Prefix: "tts:audio:",
				},
				NATS: NATSConfig{
					Bucket: "tts-audio",
				},
			},
		},
		Usage: UsageConfig{
			Store: UsageStoreConfig{
				Type: "sqlite",
				Redis: RedisConfig{
					Prefix: "tts:account:",
				},
			},
			Tiers: DefaultTiers(),
			Accounts: []AccountConfig{
				{Key: "demo", Tier: "free"},
			},
		},
		Clone: CloneConfig{
			SamplesDir:     "./voice_samples",
			MaxSampleBytes: 10 << 20,
			Workers:        2,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			Path:          "/metrics",
			Namespace:     "odiadev_tts",
			SlowThreshold: 5 * time.Second,
		},
	}
}

// DefaultTiers mirrors the published pricing plans.
func DefaultTiers() map[string]TierConfig {
	return map[string]TierConfig{
		"free": {
			RequestsLimit: 100,
			Period:        "daily",
			MaxTextChars:  500,
			RatePerSecond: 1,
			Burst:         5,
		},
		"starter": {
			RequestsLimit: 10000,
			Period:        "monthly",
			MaxTextChars:  5000,
			RatePerSecond: 10,
			Burst:         20,
		},
		"business": {
			RequestsLimit: 100000,
			Period:        "monthly",
			MaxTextChars:  5000,
			RatePerSecond: 50,
			Burst:         100,
		},
		"enterprise": {
			RequestsLimit: 1000000,
			Period:        "monthly",
			MaxTextChars:  5000,
			RatePerSecond: 200,
			Burst:         400,
		},
	}
}
