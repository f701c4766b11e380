package config

import "fmt"

// Validator checks a loaded Config for internal consistency before the
// worker starts.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(c *Config) error {
	var errs []string

	if c.Database.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if c.Database.Database == "" {
		errs = append(errs, "database.database must not be empty")
	}
	if c.Worker.JobDirRoot == "" {
		errs = append(errs, "worker.job_dir_root must not be empty")
	}
	if c.Worker.MaxLogSize <= 0 {
		errs = append(errs, "worker.max_log_size must be positive")
	}
	if c.Worker.PollInterval <= 0 {
		errs = append(errs, "worker.poll_interval must be positive")
	}
	if c.Worker.PingInterval <= 0 {
		errs = append(errs, "worker.ping_interval must be positive")
	}
	if c.Worker.ZombieTimeoutMultiplier <= 0 {
		errs = append(errs, "worker.zombie_timeout_multiplier must be positive")
	}
	if c.Worker.NumWorkerThreads <= 0 {
		errs = append(errs, "worker.num_worker_threads must be positive")
	}
	if c.Webhook.RateLimitPerSec <= 0 {
		errs = append(errs, "webhook.rate_limit_per_sec must be positive")
	}

	switch c.Logging.Format {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q is not one of json|text", c.Logging.Format))
	}

	if len(errs) > 0 {
		msg := errs[0]
		for _, e := range errs[1:] {
			msg += "; " + e
		}
		return fmt.Errorf("invalid configuration: %s", msg)
	}
	return nil
}
