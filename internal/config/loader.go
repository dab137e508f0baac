package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Load produces a Config from defaults, an optional config file named by the
// --config flag, and flag overrides, in ascending precedence.
func Load(fs *pflag.FlagSet) (Config, error) {
	cfg := Default()

	configPath, err := fs.GetString("config")
	if err != nil {
		return Config{}, err
	}
	if configPath != "" {
		v := viper.New()
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
		cfg.ConfigFile = configPath
	}

	if err := applyFlagOverrides(&cfg, fs); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
