package config

import (
	"path/filepath"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	sharedconfig "github.com/neocommercepay/commerce-system/shared/config"
	"github.com/neocommercepay/commerce-system/shared/saga"
)

type Config struct {
	sharedconfig.Base `mapstructure:",squash"`
	Processor         Processor `mapstructure:"processor"`
}

// Processor configures the simulated payment gateway and how long one charge
// attempt may take.
type Processor struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	Latency      time.Duration `mapstructure:"latency"`
	ApprovalRate float64       `mapstructure:"approval_rate"`
	// Seed of the approval sequence; 0 seeds from the clock.
	Seed int64 `mapstructure:"seed"`
}

// ReadConfig loads local.json (or $ENVIRONMENT.json) next to this file.
// PAYMENT_ prefixed environment variables override it.
func ReadConfig() (*Config, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return nil, errors.New("unable to get current file")
	}

	var cfg Config
	err := sharedconfig.Load(sharedconfig.Options{
		ServiceName: saga.PaymentService,
		EnvPrefix:   "PAYMENT",
		ConfigDir:   filepath.Dir(filename),
		DefaultPort: "8082",
		Defaults:    SetDefaults,
	}, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults sets the payment specific defaults.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("processor.timeout", "5s")
	v.SetDefault("processor.latency", "1s")
	v.SetDefault("processor.approval_rate", 0.9)
	v.SetDefault("processor.seed", 0)
}
