package config

import "github.com/spf13/pflag"

// ProcessConfig holds configuration for replaying typed events through the
// router.
type ProcessConfig struct {
	Engine
	Input     string `validate:"required"`
	BatchSize int    `validate:"gte=1"`
}

// LoadProcess merges config file, environment variables, and flags into ProcessConfig.
func LoadProcess(cfgFile string, flags *pflag.FlagSet) (ProcessConfig, error) {
	defaults := engineDefaults()
	defaults["batch-size"] = 500

	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return ProcessConfig{}, err
	}

	cfg := ProcessConfig{
		Engine:    loadEngine(v),
		Input:     v.GetString("in"),
		BatchSize: v.GetInt("batch-size"),
	}

	return cfg, check(cfg)
}
