// yausma serves a cached market overview and news feed for a fixed set of
// symbols, backed by Yahoo Finance.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/seenimoa/yausma/api"
	"github.com/seenimoa/yausma/internal/config"
	"github.com/seenimoa/yausma/internal/logging"
	"github.com/seenimoa/yausma/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set in PersistentPreRunE.
var (
	cfg *config.Config
	log zerolog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "yausma",
	Short: "yausma: cached market overview and news for a watchlist",
	Long: `yausma fetches quotes, instrument metadata and news from Yahoo Finance,
joins them into a market overview and serves the result from a time-windowed
cache over HTTP, WebSocket and this CLI.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		log = logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(overviewCmd)
	rootCmd.AddCommand(newsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "yausma %s\n", version)
		fmt.Fprintf(out, "  commit:  %s\n", commit)
		fmt.Fprintf(out, "  built:   %s\n", date)
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		if warm, _ := cmd.Flags().GetBool("warm"); warm {
			go a.warm(ctx)
		}

		srv := api.NewServer(cfg, a.market, api.Options{
			Metrics: a.metrics.Handler(),
			Logger:  log,
			Version: version,
		})
		return srv.ListenAndServe(ctx, cfg.API.Addr())
	},
}

func init() {
	serveCmd.Flags().Bool("warm", false, "fetch the overview once at startup")
}

// --- Overview Command ---

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Print the market overview",
	Long: `Print the market overview for the configured symbols, or for an
explicit set given with --tickers.

Examples:
  yausma overview
  yausma overview --tickers MDB,GTLB,BTC-USD
  yausma overview --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		tickers, _ := cmd.Flags().GetString("tickers")
		symbols := utils.ParseTickers(tickers)
		if len(symbols) == 0 {
			symbols = a.market.Symbols()
		}

		ov, err := a.market.OverviewFor(ctx, symbols)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), ov)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderOverview(ov))
		return nil
	},
}

func init() {
	overviewCmd.Flags().String("tickers", "", "comma-separated symbols (default: market.symbols)")
	overviewCmd.Flags().Bool("json", false, "print raw JSON")
}

// --- News Command ---

var newsCmd = &cobra.Command{
	Use:   "news",
	Short: "Print the latest news",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		ticker, _ := cmd.Flags().GetString("ticker")
		items, err := a.market.GetNews(ctx, ticker)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), items)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderNews(items))
		return nil
	},
}

func init() {
	newsCmd.Flags().String("ticker", "", "symbol to filter news for (default: global feed)")
	newsCmd.Flags().Bool("json", false, "print raw JSON")
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, rule)
		fmt.Fprintln(out, titleStyle.Render("  yausma: System Status"))
		fmt.Fprintln(out, rule)
		fmt.Fprintf(out, "  Version:       %s (%s)\n", version, commit)
		fmt.Fprintf(out, "  Market Status: %s\n", utils.MarketStatus())
		fmt.Fprintf(out, "  Time (ET):     %s\n", utils.NowEastern().Format("2006-01-02 15:04:05 MST"))
		fmt.Fprintln(out)

		fmt.Fprintln(out, "  Configuration:")
		fmt.Fprintf(out, "    Symbols:       %s\n", strings.Join(cfg.Market.Symbols, ", "))
		fmt.Fprintf(out, "    Overview TTL:  %s\n", cfg.Cache.OverviewWindow())
		fmt.Fprintf(out, "    News TTL:      %s (global), %s (per symbol)\n", cfg.Cache.NewsWindow(), cfg.Cache.SymbolNewsWindow())
		fmt.Fprintf(out, "    On failure:    %s\n", cfg.Market.FailurePolicy)
		fmt.Fprintf(out, "    API Server:    %s\n", cfg.API.Addr())
		mirror := "disabled"
		if cfg.Redis.Addr != "" {
			mirror = cfg.Redis.Addr
		}
		fmt.Fprintf(out, "    Redis mirror:  %s\n", mirror)
		fmt.Fprintln(out)

		fmt.Fprintln(out, "  Secrets:")
		for _, k := range config.CheckSecrets(cfg) {
			status := "not set"
			if k.IsSet {
				status = fmt.Sprintf("set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Fprintf(out, "    %-25s %s\n", k.Name+":", status)
		}

		if ping, _ := cmd.Flags().GetBool("ping"); ping {
			fmt.Fprintln(out)
			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprintf(out, "  Yahoo Finance: %s\n", pingResult(a.provider.Ping(cmd.Context())))
		}

		fmt.Fprintln(out, rule)
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("ping", false, "check upstream reachability")
}

func pingResult(err error) string {
	if err != nil {
		return downStyle.Render("unreachable: " + err.Error())
	}
	return upStyle.Render("ok")
}

// --- Config Command ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := config.ToYAML(cfg)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
