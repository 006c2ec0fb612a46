package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"reimagine/internal/config"
	"reimagine/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput   bool
		outputFormat string
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:           "reimagine",
		Short:         "Reimagine turns uploaded images into AI generated variations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}

			formatter, err := format.New(outputFormat)
			if err != nil {
				return err
			}
			outputFormatter = formatter
			if cmd.Flags().Changed("format") {
				jsonOutput = true
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "json", "structured output format (json or yaml); implies structured output")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newUploadCmd(cfg, &jsonOutput),
		newGenerateCmd(cfg, &jsonOutput),
		newListCmd(cfg, &jsonOutput),
		newShowCmd(cfg, &jsonOutput),
		newCommentCmd(cfg, &jsonOutput),
		newDeleteCmd(cfg, &jsonOutput),
		newResetCmd(cfg, &jsonOutput),
		newFetchCmd(cfg),
		newAdminCmd(cfg, &jsonOutput),
		newConfigCmd(cfg),
		newMigrateCmd(cfg, &jsonOutput),
	)

	return cmd
}
