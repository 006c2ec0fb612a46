package main

import (
	"errors"

	"github.com/spf13/cobra"

	"reimagine/internal/api"
	"reimagine/internal/config"
)

func newListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List image records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				images, err := client.ListImages(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(images)
				}
				return writeImageList(images)
			})
		},
	}
}

func newShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <filename>",
		Short: "Show one image record",
		Args:  requireFilename,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				image, err := client.GetImage(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(image)
				}
				return writeImageDetail(image)
			})
		},
	}
}

func newCommentCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "comment <filename> <text>",
		Short: "Replace the comment on an image record",
		Args:  requireExactlyArgs(2, "filename and comment text are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				image, err := client.EditComment(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(image)
				}
				return writePlain("updated comment on %s\n", image.Filename)
			})
		},
	}
}

func newDeleteCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <filename>",
		Short: "Delete an image record and its blobs",
		Args:  requireFilename,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.DeleteImage(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("deleted %s\n", resp.Filename)
			})
		},
	}
}

func newResetCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every record and every blob",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset deletes every image; rerun with --yes")
			}
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Reset(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("reset: removed %d records, %d originals and %d generated blobs\n", resp.RecordsRemoved, resp.OriginalsPurged, resp.GeneratedPurged)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")
	return cmd
}
