package config

import "time"

// Config represents the complete worker configuration.
type Config struct {
	Server     ServerConfig     `json:"server"     yaml:"server"`
	Database   DatabaseConfig   `json:"database"   yaml:"database"`
	Redis      RedisConfig      `json:"redis"      yaml:"redis"`
	Logging    LoggingConfig    `json:"logging"    yaml:"logging"`
	Worker     WorkerConfig     `json:"worker"     yaml:"worker"`
	Envs       EnvsConfig       `json:"envs"       yaml:"envs"`
	Webhook    WebhookConfig    `json:"webhook"    yaml:"webhook"`
	Monitoring MonitoringConfig `json:"monitoring" yaml:"monitoring"`
}

// ServerConfig defines the inbound webhook-trigger HTTP server settings.
// This is the one sliver of the outer REST API the worker core exposes
// directly; everything else lives in the platform API.
type ServerConfig struct {
	ListenAddr   string        `json:"listen_addr"   yaml:"listen_addr"    env:"SERVER_LISTEN_ADDR"`
	ReadTimeout  time.Duration `json:"read_timeout"  yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	CORSEnabled  bool          `json:"cors_enabled"  yaml:"cors_enabled"`
	CORSOrigins  []string      `json:"cors_origins"  yaml:"cors_origins"`
}

// DatabaseConfig defines the Postgres connection backing the queue client.
type DatabaseConfig struct {
	Host            string        `json:"host"              yaml:"host"               env:"DB_HOST"`
	Port            int           `json:"port"              yaml:"port"               env:"DB_PORT"`
	Username        string        `json:"username"          yaml:"username"           env:"DB_USERNAME"`
	Password        string        `json:"password"          yaml:"password"           env:"DB_PASSWORD"`
	Database        string        `json:"database"          yaml:"database"           env:"DB_NAME"`
	SSLMode         string        `json:"ssl_mode"          yaml:"ssl_mode"           env:"DB_SSL_MODE"`
	MaxOpenConns    int           `json:"max_open_conns"    yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"    yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// RedisConfig backs the heavy-dependency install cache (§4.5) and is used
// as a best-effort distributed idempotence lock across workers sharing the
// permanent pip cache.
type RedisConfig struct {
	Addr     string `json:"addr"     yaml:"addr"     env:"REDIS_ADDR"`
	Password string `json:"password" yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `json:"db"       yaml:"db"       env:"REDIS_DB"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `json:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"LOG_FORMAT"`
	Output string `json:"output" yaml:"output" env:"LOG_OUTPUT"`
}

// WorkerConfig is the immutable per-worker configuration
type WorkerConfig struct {
	Name            string `json:"name"              yaml:"name"              env:"WORKER_NAME"`
	BaseInternalURL string `json:"base_internal_url" yaml:"base_internal_url" env:"BASE_INTERNAL_URL"`
	BaseURL         string `json:"base_url"          yaml:"base_url"          env:"BASE_URL"`
	DisableNuser    bool   `json:"disable_nuser"     yaml:"disable_nuser"     env:"DISABLE_NUSER"`
	DisableNsjail   bool   `json:"disable_nsjail"    yaml:"disable_nsjail"    env:"DISABLE_NSJAIL"`
	KeepJobDir      bool   `json:"keep_job_dir"      yaml:"keep_job_dir"      env:"KEEP_JOB_DIR"`

	JobDirRoot    string `json:"job_dir_root"    yaml:"job_dir_root"`
	SharedDirName string `json:"shared_dir_name" yaml:"shared_dir_name"`

	NumWorkerThreads int `json:"num_worker_threads" yaml:"num_worker_threads"`

	PollInterval       time.Duration `json:"poll_interval"        yaml:"poll_interval"`
	PingInterval       time.Duration `json:"ping_interval"        yaml:"ping_interval"`
	CancelPollInterval time.Duration `json:"cancel_poll_interval" yaml:"cancel_poll_interval"`
	LogFlushInterval   time.Duration `json:"log_flush_interval"   yaml:"log_flush_interval"`
	MaxLogSize         int           `json:"max_log_size"         yaml:"max_log_size"`
	DefaultTimeout     time.Duration `json:"default_timeout"      yaml:"default_timeout"`

	ZombieCheckInterval     time.Duration `json:"zombie_check_interval"     yaml:"zombie_check_interval"`
	ZombieTimeoutMultiplier int           `json:"zombie_timeout_multiplier" yaml:"zombie_timeout_multiplier"`
}

// EnvsConfig holds interpreter paths and sandbox environment inputs.
type EnvsConfig struct {
	DenoPath   string `json:"deno_path"   yaml:"deno_path"   env:"DENO_PATH"`
	GoPath     string `json:"go_path"     yaml:"go_path"     env:"GO_PATH"`
	PythonPath string `json:"python_path" yaml:"python_path" env:"PYTHON_PATH"`
	NsjailPath string `json:"nsjail_path" yaml:"nsjail_path" env:"NSJAIL_PATH"`

	Path   string `json:"path"   yaml:"path"   env:"PATH"`
	Home   string `json:"home"   yaml:"home"   env:"HOME"`
	Gopath string `json:"gopath" yaml:"gopath" env:"GOPATH"`

	PipIndexURL      string   `json:"pip_index_url"       yaml:"pip_index_url"       env:"PIP_INDEX_URL"`
	PipExtraIndexURL string   `json:"pip_extra_index_url" yaml:"pip_extra_index_url" env:"PIP_EXTRA_INDEX_URL"`
	PipTrustedHost   string   `json:"pip_trusted_host"    yaml:"pip_trusted_host"    env:"PIP_TRUSTED_HOST"`
	PythonHeavyDeps  []string `json:"python_heavy_deps"   yaml:"python_heavy_deps"   env:"PYTHON_HEAVY_DEPS"`
}

// WebhookConfig configures the inbound trigger verifier/server.
type WebhookConfig struct {
	ListenAddr      string        `json:"listen_addr"        yaml:"listen_addr"         env:"WEBHOOK_LISTEN_ADDR"`
	RateLimitPerSec float64       `json:"rate_limit_per_sec" yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `json:"rate_limit_burst"   yaml:"rate_limit_burst"`
	DefaultAlgo     string        `json:"default_algo"       yaml:"default_algo"`
	MaxBodyBytes    int64         `json:"max_body_bytes"     yaml:"max_body_bytes"`
	RequestTimeout  time.Duration `json:"request_timeout"    yaml:"request_timeout"`
}

// MonitoringConfig defines metrics exposition settings.
type MonitoringConfig struct {
	Enabled     bool   `json:"enabled"      yaml:"enabled"`
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr" env:"METRICS_ADDR"`
}
