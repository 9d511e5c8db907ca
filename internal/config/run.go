package config

import (
	"time"

	"github.com/spf13/pflag"
)

// RunConfig holds configuration for the run command.
type RunConfig struct {
	Engine
	FromBlock         uint64
	ToBlock           uint64 `validate:"omitempty,gtefield=FromBlock"`
	BatchSize         uint64 `validate:"gte=1"`
	Confirmations     uint64
	Follow            bool
	PollInterval      time.Duration
	Archive           string
	Errors            string
	Checkpoint        string
	CheckpointEnabled bool
	CheckpointName    string
	MaxRetries        int `validate:"gte=0"`
	RetryBackoff      time.Duration
	Topic0Map         map[string]string
}

// Load merges config file, environment variables, and flags into RunConfig.
func Load(cfgFile string, flags *pflag.FlagSet) (RunConfig, error) {
	defaults := engineDefaults()
	defaults["from"] = DefaultStartBlock
	defaults["batch-size"] = uint64(2000)
	defaults["poll-interval"] = 3 * time.Second
	defaults["errors"] = "./data/decode_errors.jsonl"
	defaults["checkpoint"] = "./data/checkpoint.json"
	defaults["checkpoint-enabled"] = true
	defaults["checkpoint-name"] = "pancake-v3"
	defaults["max-retries"] = 5
	defaults["retry-backoff"] = 500 * time.Millisecond

	v, err := newViper(cfgFile, flags, defaults)
	if err != nil {
		return RunConfig{}, err
	}

	cfg := RunConfig{
		Engine:            loadEngine(v),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		BatchSize:         v.GetUint64("batch-size"),
		Confirmations:     v.GetUint64("confirmations"),
		Follow:            v.GetBool("follow"),
		PollInterval:      v.GetDuration("poll-interval"),
		Archive:           v.GetString("archive"),
		Errors:            v.GetString("errors"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		CheckpointName:    v.GetString("checkpoint-name"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		Topic0Map:         getStringMap(v, "topic0-map"),
	}

	return cfg, check(cfg)
}
