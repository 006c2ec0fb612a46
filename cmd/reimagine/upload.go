package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"reimagine/internal/api"
	"reimagine/internal/config"
	"reimagine/internal/models"
)

func newUploadCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		comment string
		name    string
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an original image",
		Args:  requireExactlyArgs(1, "file path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			filename := name
			if filename == "" {
				filename = filepath.Base(args[0])
			}

			return withClient(cfg, func(client *api.Client) error {
				image, err := client.Upload(cmd.Context(), filename, comment, f)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(image)
				}
				return writePlain("uploaded %s\n", image.Filename)
			})
		},
	}

	cmd.Flags().StringVarP(&comment, "comment", "m", "", "comment passed to the provider as the prompt")
	cmd.Flags().StringVar(&name, "name", "", "stored filename (default: base name of <file>)")
	return cmd
}

func newGenerateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var comment string

	cmd := &cobra.Command{
		Use:   "generate <filename>",
		Short: "Generate a new image from an uploaded original",
		Args:  requireFilename,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.GenerateRequest{Filename: args[0]}
			if cmd.Flags().Changed("comment") {
				req.Comment = &comment
			}

			return withClient(cfg, func(client *api.Client) error {
				image, err := client.Generate(cmd.Context(), req)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(image)
				}
				return writePlain("generated %s from %s\n", image.GeneratedName(), image.Filename)
			})
		},
	}

	cmd.Flags().StringVarP(&comment, "comment", "m", "", "prompt override (default: the stored comment)")
	return cmd
}

func newFetchCmd(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "fetch <namespace> <filename>",
		Short: "Download an original or generated blob",
		Args:  requireExactlyArgs(2, "namespace and filename are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace, filename := args[0], args[1]
			target := output
			if target == "" {
				target = filename
			}

			return withClient(cfg, func(client *api.Client) error {
				w := os.Stdout
				if target != "-" {
					f, err := os.Create(target)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				n, err := client.FetchBlob(cmd.Context(), models.Namespace(namespace), filename, w)
				if err != nil {
					if target != "-" {
						_ = os.Remove(target)
					}
					return err
				}
				if target == "-" {
					return nil
				}
				_, err = fmt.Fprintf(os.Stderr, "wrote %d bytes to %s\n", n, target)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path, - for stdout (default: <filename>)")
	return cmd
}
