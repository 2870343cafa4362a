package config

import (
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"

	sharedconfig "github.com/neocommercepay/commerce-system/shared/config"
	"github.com/neocommercepay/commerce-system/shared/saga"
)

type Config struct {
	sharedconfig.Base `mapstructure:",squash"`
}

// ReadConfig loads local.json (or $ENVIRONMENT.json) next to this file.
// ORDER_ prefixed environment variables override it, e.g. ORDER_BROKER_DRIVER.
func ReadConfig() (*Config, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return nil, errors.New("unable to get current file")
	}

	var cfg Config
	err := sharedconfig.Load(sharedconfig.Options{
		ServiceName: saga.OrderService,
		EnvPrefix:   "ORDER",
		ConfigDir:   filepath.Dir(filename),
		DefaultPort: "8081",
	}, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
