// Package cmd provides the CLI commands for http-source.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/streamkit/http-source/internal/config"
)

var cfgFile string
var envFile string

var rootCmd = &cobra.Command{
	Use:   "http-source",
	Short: "http-source - HTTP to message stream connector",
	Long: `http-source accepts JSON payloads over HTTP, runs them through an optional
validation and key extraction pipeline, and publishes them to a message stream.

Quick start:
  1. Create a config file: http-source.yaml
  2. Run: http-source start

Configuration:
  Config is loaded from http-source.yaml in the current directory,
  $HOME/.http-source/, or /etc/http-source/.

  Environment variables can override config values with the HTTP_SOURCE_ prefix.
  Example: HTTP_SOURCE_SERVER_HTTP_ADDR=:9090
  Variables are also read from a .env file in the working directory.

Commands:
  start          Start the connector
  stop           Stop the running connector
  check          Validate the configuration and print the effective settings
  hash-password  Generate an argon2id hash for basic auth
  version        Print version information`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadEnvFile(envFile, cmd.Flags().Changed("env-file"))
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./http-source.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file with KEY=VALUE environment overrides")
}

func initConfig() {
	config.InitViper(cfgFile)
}
