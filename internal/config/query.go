package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// QueryConfig holds configuration for the query commands.
type QueryConfig struct {
	PGDSN    string `validate:"required"`
	FeeTiers []uint32
	Now      uint64
	LogLevel string `validate:"oneof=debug info warn error"`
}

// LoadQuery merges config file, environment variables, and flags into QueryConfig.
func LoadQuery(cfgFile string, flags *pflag.FlagSet) (QueryConfig, error) {
	v, err := newViper(cfgFile, flags, map[string]interface{}{
		"log-level": "warn",
	})
	if err != nil {
		return QueryConfig{}, err
	}

	feeTiers, err := getFeeTiers(v, "fee-tiers")
	if err != nil {
		return QueryConfig{}, err
	}
	now, err := ParseTimestamp(v.GetString("now"))
	if err != nil {
		return QueryConfig{}, err
	}
	if now == 0 {
		now = uint64(time.Now().Unix())
	}

	cfg := QueryConfig{
		PGDSN:    v.GetString("pg-dsn"),
		FeeTiers: feeTiers,
		Now:      now,
		LogLevel: v.GetString("log-level"),
	}

	return cfg, check(cfg)
}

// ParseTimestamp parses a timestamp value (unix seconds or RFC3339).
func ParseTimestamp(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, nil
	}

	if isNumeric(input) {
		val, err := strconv.ParseUint(input, 10, 64)
		if err != nil {
			return 0, err
		}
		return val, nil
	}

	tm, err := time.Parse(time.RFC3339, input)
	if err != nil {
		return 0, err
	}
	return uint64(tm.Unix()), nil
}

func isNumeric(input string) bool {
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return input != ""
}
