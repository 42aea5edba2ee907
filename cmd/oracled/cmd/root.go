package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GPTx-global/flightsurety-oracle/oracle/config"
	"github.com/GPTx-global/flightsurety-oracle/oracle/daemon"
	"github.com/GPTx-global/flightsurety-oracle/oracle/log"
	"github.com/GPTx-global/flightsurety-oracle/oracle/wallet"
)

const (
	FlagHome      = "home"
	FlagLogLevel  = "log-level"
	FlagOverwrite = "overwrite"
)

// NewRootCmd builds the oracled command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "oracled",
		Short:         "FlightSurety oracle daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, _ := cmd.Flags().GetString(FlagLogLevel)
			if level == "" {
				return nil
			}
			return log.SetLevel(level)
		},
	}

	rootCmd.PersistentFlags().String(FlagHome, config.DefaultHome(), "directory for config and logs")
	rootCmd.PersistentFlags().String(FlagLogLevel, "", "log level (debug|info|warn|error)")

	rootCmd.AddCommand(
		InitCmd(),
		StartCmd(),
		AccountsCmd(),
	)

	return rootCmd
}

func InitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config to <home>/config.toml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, _ := cmd.Flags().GetString(FlagHome)
			overwrite, _ := cmd.Flags().GetBool(FlagOverwrite)

			path := filepath.Join(home, config.FileName)
			if _, err := os.Stat(path); err == nil && !overwrite {
				return fmt.Errorf("config already exists at %s (use --%s)", path, FlagOverwrite)
			}

			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)

			return nil
		},
	}

	cmd.Flags().Bool(FlagOverwrite, false, "replace an existing config")
	return cmd
}

func StartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Register the oracle pool and answer flight status requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, _ := cmd.Flags().GetString(FlagHome)

			cfg, err := config.Load(home)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !cmd.Flags().Changed(FlagLogLevel) {
				if err := log.SetLevel(cfg.Log.Level); err != nil {
					return err
				}
			}
			if cfg.Log.ToFile {
				log.ResetLogger(cfg.Home())
				fmt.Fprintf(cmd.OutOrStdout(), "logging to %s\n", log.Dir())
			}
			cfg.Print()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runDaemon(ctx, cfg)
		},
	}
}

func runDaemon(ctx context.Context, cfg *config.Config, opts ...daemon.Option) error {
	d, err := daemon.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(ctx); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	err = d.Run(ctx)
	d.Stop()
	if err != nil {
		return fmt.Errorf("daemon stopped: %w", err)
	}

	return nil
}

func AccountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List the accounts the oracle pool registers from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			home, _ := cmd.Flags().GetString(FlagHome)

			cfg, err := config.Read(home)
			if err != nil {
				return err
			}

			pool, err := wallet.NewPool(cfg.Oracle.Mnemonic, cfg.Oracle.AccountCount)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, addr := range pool.Addresses(cfg.Oracle.AccountOffset, cfg.Oracle.PoolSize) {
				fmt.Fprintf(out, "%d\t%s\n", cfg.Oracle.AccountOffset+i, addr.Hex())
			}

			return nil
		},
	}
}
