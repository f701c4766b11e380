package config

import "time"

// GetDefaults returns the default configuration.
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:   "0.0.0.0:8087",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			CORSEnabled:  true,
			CORSOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Username:        "windmill",
			Database:        "windmill",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Worker: WorkerConfig{
			Name:                    "",
			BaseInternalURL:         "http://localhost:8000",
			BaseURL:                 "http://localhost:8000",
			DisableNuser:            false,
			DisableNsjail:           false,
			KeepJobDir:              false,
			JobDirRoot:              "/tmp/windmill",
			SharedDirName:           "shared",
			NumWorkerThreads:        1,
			PollInterval:            50 * time.Millisecond,
			PingInterval:            5 * time.Second,
			CancelPollInterval:      500 * time.Millisecond,
			LogFlushInterval:        500 * time.Millisecond,
			MaxLogSize:              2000000,
			DefaultTimeout:          300 * time.Second,
			ZombieCheckInterval:     60 * time.Second,
			ZombieTimeoutMultiplier: 5,
		},
		Envs: EnvsConfig{
			DenoPath:   "/usr/bin/deno",
			GoPath:     "/usr/bin/go",
			PythonPath: "/usr/bin/python3",
			NsjailPath: "/usr/bin/nsjail",
			Path:       "/usr/bin:/bin",
			Home:       "/tmp",
			Gopath:     "/tmp/windmill/cache/go",
			PythonHeavyDeps: []string{
				"numpy", "pandas", "matplotlib", "scipy", "torch", "tensorflow",
			},
		},
		Webhook: WebhookConfig{
			ListenAddr:      "0.0.0.0:8088",
			RateLimitPerSec: 20,
			RateLimitBurst:  40,
			DefaultAlgo:     "sha256",
			MaxBodyBytes:    1 << 20,
			RequestTimeout:  10 * time.Second,
		},
		Monitoring: MonitoringConfig{
			Enabled:     true,
			MetricsAddr: "0.0.0.0:2112",
		},
	}
}
