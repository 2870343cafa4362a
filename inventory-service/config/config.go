package config

import (
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	sharedconfig "github.com/neocommercepay/commerce-system/shared/config"
	"github.com/neocommercepay/commerce-system/shared/saga"
)

type Config struct {
	sharedconfig.Base `mapstructure:",squash"`
	Inventory         Inventory `mapstructure:"inventory"`
}

type Inventory struct {
	// CompensateOnCancel gives a cancelled order's stock back. Off by default.
	CompensateOnCancel bool `mapstructure:"compensate_on_cancel"`
}

// ReadConfig loads local.json (or $ENVIRONMENT.json) next to this file.
// INVENTORY_ prefixed environment variables override it.
func ReadConfig() (*Config, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return nil, errors.New("unable to get current file")
	}

	var cfg Config
	err := sharedconfig.Load(sharedconfig.Options{
		ServiceName: saga.InventoryService,
		EnvPrefix:   "INVENTORY",
		ConfigDir:   filepath.Dir(filename),
		DefaultPort: "8083",
		Defaults: func(v *viper.Viper) {
			v.SetDefault("inventory.compensate_on_cancel", false)
		},
	}, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
