package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/streamkit/http-source/internal/config"
	"github.com/streamkit/http-source/internal/model"
	"github.com/streamkit/http-source/internal/service"
)

var checkDev bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print the effective settings",
	Long: `Load and validate the configuration, compile every configured stage
(JSON Schema, structure type, key expressions, header patterns) and print the
effective settings as YAML. The output is not contacted.

Exits non-zero if the configuration or any stage is invalid.

Examples:
  http-source check
  http-source --config /etc/http-source/http-source.yaml check`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(checkDev)
		if err != nil {
			return err
		}
		return checkConfig(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkDev, "dev", false, "Apply development mode defaults before validating")
	rootCmd.AddCommand(checkCmd)
}

// checkConfig builds the pipeline and writes the effective config to w.
func checkConfig(w io.Writer, cfg *config.Config) error {
	logger := slog.New(slog.DiscardHandler)
	p, err := service.BuildPipeline(stageConfig(cfg), model.NewRegistry(), logger)
	if err != nil {
		return fmt.Errorf("pipeline is invalid: %w", err)
	}

	effective := *cfg
	if effective.Security.PasswordHash != "" {
		effective.Security.PasswordHash = "<redacted>"
	}
	out, err := yaml.Marshal(&effective)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if used := config.ConfigFileUsed(); used != "" {
		fmt.Fprintf(w, "# config: %s\n", used)
	}
	fmt.Fprintf(w, "# stages: %s\n", strings.Join(p.Stages(), ", "))
	_, err = w.Write(out)
	return err
}
