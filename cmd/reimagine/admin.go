package main

import (
	"time"

	"github.com/spf13/cobra"

	"reimagine/internal/api"
	"reimagine/internal/config"
)

func newAdminCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}

	cmd.AddCommand(newAdminSweepCmd(cfg, jsonOutput))
	return cmd
}

func newAdminSweepCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		apply  bool
		minAge time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Find and remove blobs no image record references",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("min-age") {
				configured, err := cfg.SweepMinAge()
				if err != nil {
					return err
				}
				minAge = configured
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Sweep(cmd.Context(), apply, minAge)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}

				mode := "dry run"
				if !resp.DryRun {
					mode = "applied"
				}
				if err := writePlain("%s: candidates=%d deleted=%d failed=%d reclaimed_bytes=%d\n", mode, resp.CandidateCount, resp.DeletedCount, resp.FailedCount, resp.ReclaimedBytes); err != nil {
					return err
				}
				for _, blob := range resp.Candidates {
					if err := writePlain("  %s/%s (%d bytes)\n", blob.Namespace, blob.Key, blob.SizeBytes); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete orphaned blobs (default: dry run)")
	cmd.Flags().DurationVar(&minAge, "min-age", 0, "skip blobs modified more recently than this (default: sweep.min_age)")
	return cmd
}
