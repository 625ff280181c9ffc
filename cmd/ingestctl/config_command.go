package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"podingest/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	var showPath string
	showCmd := &cobra.Command{
		Use:         "show",
		Short:       "Print the resolved configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, exists, err := config.Load(showPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			if !exists {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			fmt.Fprintf(out, "Channel: %s\n", cfg.SourceChannelID)
			fmt.Fprintf(out, "Primary voice profile: %s\n", cfg.PrimaryVoiceProfileName)
			fmt.Fprintf(out, "Pools: io=%d gpu=%d db=%d\n", cfg.IOWorkers, cfg.GPUWorkers, cfg.DBWorkers)
			fmt.Fprintf(out, "Assume monologue: %s\n", yesNo(cfg.AssumeMonologue))
			fmt.Fprintf(out, "Subtitles enabled: %s\n", yesNo(cfg.SubtitlesEnabled))
			return nil
		},
	}
	showCmd.Flags().StringVarP(&showPath, "path", "p", "", "Configuration file path")
	configCmd.AddCommand(showCmd)

	var initPath string
	var initOverwrite bool
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := initPath
			if strings.TrimSpace(target) == "" {
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

			if !initOverwrite {
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
			fmt.Fprintln(out, "Edit the file to set source_channel_id and the voice/text embedding credentials before running ingestctl.")
			return nil
		},
	}
	initCmd.Flags().StringVarP(&initPath, "path", "p", "", "Destination for the configuration file")
	initCmd.Flags().BoolVar(&initOverwrite, "overwrite", false, "Overwrite existing configuration if present")
	configCmd.AddCommand(initCmd)

	return configCmd
}
