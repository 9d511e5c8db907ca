package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"poolScope/internal/pricing"
)

// Deployment defaults for PancakeSwap V3 on BSC.
const (
	DefaultFactory    = "0x0bfbcf9fa4f9c56b0f40a671ad40e0805a091865"
	DefaultStartBlock = uint64(51961304)
)

// DefaultFeeTiers are the fee tiers listed by pool queries.
var DefaultFeeTiers = []uint32{100, 500, 2500, 10000}

var validate = validator.New()

// Engine holds the settings shared by every command that applies events.
type Engine struct {
	RPCURL        string  `validate:"required,url"`
	RPCRPS        float64 `validate:"gte=0"`
	RPCBurst      int     `validate:"gte=0"`
	Factory       string  `validate:"required,eth_addr"`
	PGDSN         string
	RedisAddr     string
	Workers       int  `validate:"gte=1"`
	PinBlock      bool
	AnchorUSD     float64 `validate:"gte=0"`
	StableSymbols []string
	AnchorSymbols []string
	MetricsAddr   string
	LogLevel      string `validate:"oneof=debug info warn error"`
}

// Pricing returns the heuristic configuration.
func (e Engine) Pricing() pricing.Config {
	return pricing.Config{
		AnchorUSD:     e.AnchorUSD,
		StableSymbols: e.StableSymbols,
		AnchorSymbols: e.AnchorSymbols,
	}
}

// newViper merges config file, environment variables, and flags. Keys use the
// flag names; INDEXER_PG_DSN sets pg-dsn.
func newViper(cfgFile string, flags *pflag.FlagSet, defaults map[string]interface{}) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return v, nil
}

func engineDefaults() map[string]interface{} {
	return map[string]interface{}{
		"factory":   DefaultFactory,
		"workers":   4,
		"pin-block": true,
		"rpc-rps":   0.0,
		"rpc-burst": 1,
		"log-level": "info",
	}
}

func loadEngine(v *viper.Viper) Engine {
	anchorUSD := v.GetFloat64("anchor-usd")
	if !v.IsSet("anchor-usd") {
		// PRICE_WBNB_USD is accepted as an alias.
		_ = v.BindEnv("price-wbnb-usd", "PRICE_WBNB_USD")
		anchorUSD = v.GetFloat64("price-wbnb-usd")
	}

	return Engine{
		RPCURL:        v.GetString("rpc"),
		RPCRPS:        v.GetFloat64("rpc-rps"),
		RPCBurst:      v.GetInt("rpc-burst"),
		Factory:       v.GetString("factory"),
		PGDSN:         v.GetString("pg-dsn"),
		RedisAddr:     v.GetString("redis-addr"),
		Workers:       v.GetInt("workers"),
		PinBlock:      v.GetBool("pin-block"),
		AnchorUSD:     anchorUSD,
		StableSymbols: upper(getStringSlice(v, "stable-symbols")),
		AnchorSymbols: upper(getStringSlice(v, "anchor-symbols")),
		MetricsAddr:   v.GetString("metrics-addr"),
		LogLevel:      v.GetString("log-level"),
	}
}

func check(cfg interface{}) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

// getFeeTiers reads a list of fee tiers in parts per million.
func getFeeTiers(v *viper.Viper, key string) ([]uint32, error) {
	items := getStringSlice(v, key)
	if items == nil {
		return DefaultFeeTiers, nil
	}
	out := make([]uint32, 0, len(items))
	for _, item := range items {
		tier, err := strconv.ParseUint(item, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid fee tier %q: %w", item, err)
		}
		out = append(out, uint32(tier))
	}
	return out, nil
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

func upper(items []string) []string {
	for i := range items {
		items[i] = strings.ToUpper(items[i])
	}
	return items
}

// getStringMap reads a map from the config file or from a "k=v,k=v" string.
func getStringMap(v *viper.Viper, key string) map[string]string {
	out := make(map[string]string)
	switch typed := v.Get(key).(type) {
	case map[string]string:
		for k, val := range typed {
			out[k] = val
		}
	case map[string]interface{}:
		for k, val := range typed {
			out[k] = fmt.Sprintf("%v", val)
		}
	case string:
		for _, pair := range splitAndClean(typed) {
			k, val, ok := strings.Cut(pair, "=")
			k, val = strings.TrimSpace(k), strings.TrimSpace(val)
			if !ok || k == "" || val == "" {
				continue
			}
			out[k] = val
		}
	}
	return out
}
