// Package config loads the service configuration of cgc serve.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ohowland/cgc_opt/internal/pkg/comm/modbuscomm"
	"github.com/ohowland/cgc_opt/internal/pkg/database/mongodb"
	"github.com/ohowland/cgc_opt/internal/pkg/database/sqldb"
	"github.com/ohowland/cgc_opt/internal/pkg/datastreams/natshandler"
	"github.com/ohowland/cgc_opt/internal/pkg/dispatch/lpdispatch"
	"github.com/ohowland/cgc_opt/internal/pkg/errs"
	"github.com/ohowland/cgc_opt/internal/pkg/webservice"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CGC_HTTP_ADDR.
const EnvPrefix = "CGC"

// Config is the service configuration. A nil handler section disables the
// handler.
type Config struct {
	Scenario string                    `mapstructure:"scenario"`
	Interval time.Duration             `mapstructure:"interval"`
	HTTP     webservice.Config         `mapstructure:"http"`
	NATS     *natshandler.Config       `mapstructure:"nats"`
	Mongo    *mongodb.Config           `mapstructure:"mongo"`
	SQL      *sqldb.Config             `mapstructure:"sql"`
	Modbus   []modbuscomm.PollerConfig `mapstructure:"modbus"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("scenario", "")
	v.SetDefault("interval", lpdispatch.DefaultInterval)
	v.SetDefault("http.addr", ":8080")
	return v
}

// Load reads the JSON or YAML file at path, applies CGC_ environment
// overrides and validates the result. An empty path loads defaults and the
// environment only.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, errors.Join(errs.ErrConfiguration, err))
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, errors.Join(errs.ErrConfiguration, err))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields every deployment needs.
func (c Config) Validate() error {
	if c.Scenario == "" {
		return fmt.Errorf("config: scenario path is required: %w", errs.ErrConfiguration)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("config: interval %v must be positive: %w", c.Interval, errs.ErrConfiguration)
	}
	return nil
}
