package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolScope/internal/config"
	"poolScope/internal/model"
	"poolScope/internal/query"
	"poolScope/internal/storage/postgres"
)

func newQueryCmd() *cobra.Command {
	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Read indexed pools and tokens",
	}

	queryCmd.PersistentFlags().String("pg-dsn", "", "Postgres DSN")
	queryCmd.PersistentFlags().String("fee-tiers", "", "fee tiers to list (comma-separated, default 100,500,2500,10000)")
	queryCmd.PersistentFlags().String("now", "", "evaluation time (unix seconds or RFC3339), default now")
	queryCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	queryCmd.AddCommand(&cobra.Command{
		Use:   "pools [token]",
		Short: "List the pools of a token, or the newest pools",
		Args:  cobra.MaximumNArgs(1),
		RunE: withQuery(func(ctx context.Context, q queryEnv, args []string) (interface{}, error) {
			token := ""
			if len(args) == 1 {
				token = args[0]
			}
			return q.service.TokenPools(ctx, token, q.cfg.Now)
		}),
	})

	queryCmd.AddCommand(&cobra.Command{
		Use:   "pool <address>",
		Short: "Show one pool",
		Args:  cobra.ExactArgs(1),
		RunE: withQuery(func(ctx context.Context, q queryEnv, args []string) (interface{}, error) {
			view, ok, err := q.service.PoolSummary(ctx, args[0], q.cfg.Now)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("pool %s not found", args[0])
			}
			return view, nil
		}),
	})

	searchCmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search tokens by symbol, name or address",
		Args:  cobra.ExactArgs(1),
	}
	searchCmd.Flags().Int("limit", query.DefaultSearchLimit, "maximum results")
	searchCmd.RunE = withQuery(func(ctx context.Context, q queryEnv, args []string) (interface{}, error) {
		limit, _ := searchCmd.Flags().GetInt("limit")
		return q.service.SearchTokens(ctx, args[0], limit)
	})
	queryCmd.AddCommand(searchCmd)

	queryCmd.AddCommand(&cobra.Command{
		Use:   "volume <pool>...",
		Short: "Show current hour and trailing day volume",
		Args:  cobra.MinimumNArgs(1),
		RunE: withQuery(func(ctx context.Context, q queryEnv, args []string) (interface{}, error) {
			pools := make([]string, 0, len(args))
			for _, arg := range args {
				key, err := model.NormalizeAddress(arg)
				if err != nil {
					return nil, err
				}
				pools = append(pools, key)
			}
			return q.store.PoolVolumes(ctx, pools, q.cfg.Now)
		}),
	})

	return queryCmd
}

type queryEnv struct {
	cfg     config.QueryConfig
	store   *postgres.Store
	service *query.Service
}

func withQuery(fn func(ctx context.Context, q queryEnv, args []string) (interface{}, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfgFile, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadQuery(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}

		logger, err := newLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx := cmd.Context()
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()

		logger.Debug("query", zap.String("command", cmd.Name()), zap.Strings("args", args), zap.Uint64("now", cfg.Now))

		result, err := fn(ctx, queryEnv{
			cfg:     cfg,
			store:   store,
			service: query.NewService(store, cfg.FeeTiers, logger),
		}, args)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
}
