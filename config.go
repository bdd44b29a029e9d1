package paymcp

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config carries environment-derived orchestrator settings. Apply with
// WithConfig.
type Config struct {
	// Flow selects the strategy: auto, elicitation, resubmit, x402, or
	// dynamic_tools.
	Flow string `env:"PAYMCP_FLOW,default=auto"`

	// Retention bounds how long unconfirmed payment state is kept.
	Retention time.Duration `env:"PAYMCP_RETENTION,default=10m"`

	// SweepInterval is the cadence of the background expiry sweep.
	SweepInterval time.Duration `env:"PAYMCP_SWEEP_INTERVAL,default=1m"`
}

// ConfigFromEnv loads Config from the environment.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("paymcp: decode config from env: %w", err)
	}
	return cfg, nil
}
