package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/compose-network/harberger/ledger-app/config"
	"github.com/compose-network/harberger/log"
)

const defaultConfigPath = "ledger-app/configs/config.yaml"

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "harberger-ledger",
		Short: "Harberger slot ledger",
		Long:  banner + "\n\nA self-assessed, continuously taxed slot ledger served over HTTP.",
		RunE:  runApp,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}
)

const banner = `
██╗  ██╗ █████╗ ██████╗ ██████╗ ███████╗██████╗  ██████╗ ███████╗██████╗
██║  ██║██╔══██╗██╔══██╗██╔══██╗██╔════╝██╔══██╗██╔════╝ ██╔════╝██╔══██╗
███████║███████║██████╔╝██████╔╝█████╗  ██████╔╝██║  ███╗█████╗  ██████╔╝
██╔══██║██╔══██║██╔══██╗██╔══██╗██╔══╝  ██╔══██╗██║   ██║██╔══╝  ██╔══██╗
██║  ██║██║  ██║██║  ██║██████╔╝███████╗██║  ██║╚██████╔╝███████╗██║  ██║
╚═╝  ╚═╝╚═╝  ╚═╝╚═╝  ╚═╝╚═════╝ ╚══════╝╚═╝  ╚═╝ ╚═════╝ ╚══════╝╚═╝  ╚═╝`

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	return rootCmd.Execute()
}

func initCommands() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(versionCmd, newKeygenCmd(), newSignCmd())

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")

	// API flags
	rootCmd.PersistentFlags().String("listen-addr", "", "HTTP API listen address")
	rootCmd.PersistentFlags().Bool("metrics", false, "enable metrics")

	// Persistence flags
	rootCmd.PersistentFlags().String("state-file", "", "ledger state file")
	rootCmd.PersistentFlags().String("journal-file", "", "event journal file")

	// Sweeper flags
	rootCmd.PersistentFlags().Duration("sweep-period", 0, "interval between collection sweeps")
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = defaultConfigPath
	}
}

func runApp(cmd *cobra.Command, _ []string) error {
	fmt.Println(banner)
	fmt.Println()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	log := log.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	log.Info().
		Str("config_file", cfgFile).
		Str("listen_addr", cfg.API.ListenAddr).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Bool("auth_enabled", cfg.Auth.Enabled).
		Str("authority", cfg.Ledger.Authority).
		Uint64("tax_rate_bps", cfg.Ledger.TaxRateBps).
		Str("log_level", cfg.Log.Level).
		Msg("Configuration loaded")

	application, err := NewApp(cmd.Context(), cfg, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(cmd.Context())
}

func runVersion(*cobra.Command, []string) {
	fmt.Println(banner)
	fmt.Println()
	fmt.Printf("Harberger Ledger\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flag("log-level").Changed {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flag("log-pretty").Changed {
		cfg.Log.Pretty, _ = cmd.Flags().GetBool("log-pretty")
	}

	if cmd.Flag("listen-addr").Changed {
		cfg.API.ListenAddr, _ = cmd.Flags().GetString("listen-addr")
	}
	if cmd.Flag("metrics").Changed {
		cfg.Metrics.Enabled, _ = cmd.Flags().GetBool("metrics")
	}

	if cmd.Flag("state-file").Changed {
		cfg.Ledger.StateFile, _ = cmd.Flags().GetString("state-file")
	}
	if cmd.Flag("journal-file").Changed {
		cfg.Journal.Path, _ = cmd.Flags().GetString("journal-file")
	}

	if cmd.Flag("sweep-period").Changed {
		cfg.Sweeper.Period, _ = cmd.Flags().GetDuration("sweep-period")
	}
}
