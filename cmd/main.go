package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Vasu1712/streamsync-backend/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the watch-party sync server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), v)
		},
	}

	root := &cobra.Command{
		Use:          "streamsync",
		Short:        "Real-time playback and chat sync for watch parties",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
			}
		},
		RunE: serveCmd.RunE,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	flags := root.PersistentFlags()
	flags.String("addr", ":8080", "HTTP listen address")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("store", config.DriverMemory, "room store driver (memory, postgres, valkey)")
	flags.String("postgres-dsn", "", "PostgreSQL connection string")
	flags.String("valkey-addr", "", "Valkey address (host:port)")

	_ = v.BindPFlag(config.KeyAddr, flags.Lookup("addr"))
	_ = v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	_ = v.BindPFlag(config.KeyStoreDriver, flags.Lookup("store"))
	_ = v.BindPFlag(config.KeyPostgresDSN, flags.Lookup("postgres-dsn"))
	_ = v.BindPFlag(config.KeyValkeyAddr, flags.Lookup("valkey-addr"))

	root.AddCommand(serveCmd, &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "streamsync", version)
		},
	})
	return root
}
