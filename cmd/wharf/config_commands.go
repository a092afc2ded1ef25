package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"wharf/internal/config"
	"wharf/internal/preflight"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigCheckCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the file to set hoster.api_token (or export WHARF_HOSTER_TOKEN) before running wharf.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and run readiness checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var flagPath string
			if ctx.configFlag != nil {
				flagPath = strings.TrimSpace(*ctx.configFlag)
			}
			cfg, path, exists, err := config.Load(flagPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("ensure directories: %w", err)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			fmt.Fprintf(stdout, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(stdout, "Config file did not exist; defaults were used")
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Readiness", colorize) {
				fmt.Fprintln(stdout, line)
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			for _, result := range results {
				fmt.Fprintln(stdout, renderStatusLine(result.Name, preflightKind(result), result.Detail, colorize))
			}
			fmt.Fprintln(stdout)

			if preflight.Failed(results) {
				return errors.New("required readiness checks failed")
			}
			fmt.Fprintln(stdout, "Configuration valid")
			return nil
		},
	}
}

func preflightKind(result preflight.Result) statusKind {
	switch {
	case result.Passed:
		return statusOK
	case result.Advisory:
		return statusWarn
	default:
		return statusError
	}
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Paths", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, renderStatusLine("Download dir", statusInfo, cfg.Paths.DownloadDir, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Incomplete dir", statusInfo, cfg.Paths.IncompleteDir, colorize))
			fmt.Fprintln(stdout, renderStatusLine("State dir", statusInfo, cfg.Paths.StateDir, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Log dir", statusInfo, cfg.Paths.LogDir, colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Host", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, renderStatusLine("Base URL", statusInfo, cfg.Hoster.BaseURL, colorize))
			fmt.Fprintln(stdout, renderStatusLine("API token set", statusInfo, yesNo(strings.TrimSpace(cfg.Hoster.APIToken) != ""), colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Engine", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, renderStatusLine("Max downloads", statusInfo, fmt.Sprintf("%d", cfg.Engine.MaxConcurrentDownloads), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Segments per task", statusInfo, fmt.Sprintf("%d", cfg.Engine.SegmentsPerTask), colorize))
			speedLimit := "unlimited"
			if cfg.Engine.SpeedLimitBPS > 0 {
				speedLimit = formatSpeed(cfg.Engine.SpeedLimitBPS)
			}
			fmt.Fprintln(stdout, renderStatusLine("Speed limit", statusInfo, speedLimit, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Extract archives", statusInfo, yesNo(cfg.Engine.ExtractArchives), colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("API", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, renderStatusLine("Bind", statusInfo, cfg.API.Bind, colorize))
			fmt.Fprintln(stdout, renderStatusLine("API key set", statusInfo, yesNo(strings.TrimSpace(cfg.API.APIKey) != ""), colorize))
			return nil
		},
	}
}
