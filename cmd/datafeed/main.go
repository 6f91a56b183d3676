package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"datafeed-go/internal/config"
	"datafeed-go/internal/exchange"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "config/config.conf"

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "datafeed",
		Short:         "Unified market data feed for crypto exchanges",
		Long:          `Chart history, live trades and order books from several exchanges behind one API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "Path to ini config")

	root.AddCommand(newServeCmd(&cfgPath), newHistoryCmd(&cfgPath), newResolutionsCmd())
	return root
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon: adapters, streams and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(*cfgPath)
		},
	}
}

func newHistoryCmd(cfgPath *string) *cobra.Command {
	var (
		exchangeName string
		symbol       string
		resolution   string
		from, to     int64
		restBase     string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Fetch chart bars for a symbol and print them as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigOrDefault(*cfgPath)
			if to == 0 {
				to = time.Now().Unix()
			}
			if from == 0 {
				from = to - 24*60*60
			}
			opts := exchange.OptionsFromConfig(cfg, exchangeName)
			opts.RestBase = restBase
			adapter := exchange.NewAdapter(exchangeName, opts)

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RestTimeout()+5*time.Second)
			defer cancel()
			res, err := adapter.GetHistory(ctx, symbol, resolution, from, to)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVarP(&exchangeName, "exchange", "e", "binance", "Exchange name")
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "BTC/USDT", "Symbol BASE/QUOTE")
	cmd.Flags().StringVarP(&resolution, "resolution", "r", "60", "Chart resolution (1, 60, D, W...)")
	cmd.Flags().Int64Var(&from, "from", 0, "Range start, unix seconds (default: to - 24h)")
	cmd.Flags().Int64Var(&to, "to", 0, "Range end, unix seconds (default: now)")
	cmd.Flags().StringVar(&restBase, "rest-base", "", "Override exchange REST base URL")
	return cmd
}

func newResolutionsCmd() *cobra.Command {
	var exchangeName string
	cmd := &cobra.Command{
		Use:   "resolutions",
		Short: "Print chart resolutions supported by an exchange",
		RunE: func(cmd *cobra.Command, args []string) error {
			venue, ok := exchange.LookupVenue(exchangeName)
			if !ok {
				return fmt.Errorf("%s: %w", exchangeName, exchange.ErrUnknownExchange)
			}
			for _, r := range venue.Resolutions.Supported {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&exchangeName, "exchange", "e", "binance", "Exchange name")
	return cmd
}

// loadConfigOrDefault: для разовых команд конфиг необязателен
func loadConfigOrDefault(path string) *config.Config {
	if _, err := os.Stat(path); err != nil {
		return config.Default()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[LOG][ERROR] Failed to load config %s: %v, using defaults\n", path, err)
		return config.Default()
	}
	return cfg
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
