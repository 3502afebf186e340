package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/poapgate/internal/netx"
	"github.com/dmitrijs2005/poapgate/internal/server/milestones"
	"github.com/dmitrijs2005/poapgate/internal/server/models"
	"github.com/spf13/cobra"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd, true)
			if err != nil {
				return err
			}
			defer c.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func milestonesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "milestones",
		Short: "Manage milestone definitions",
	}

	var file string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Upsert milestone definitions from a YAML file (built-in set by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				defs []*models.Milestone
				err  error
			)
			if file == "" {
				defs, err = milestones.DefaultDefinitions()
			} else {
				var f *os.File
				f, err = os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				defs, err = milestones.LoadDefinitions(f)
			}
			if err != nil {
				return err
			}

			c, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := milestones.Seed(cmd.Context(), c.Mirror, defs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d milestones seeded\n", len(defs))
			return nil
		},
	}
	seed.Flags().StringVarP(&file, "file", "f", "", "YAML file with milestone definitions")

	list := &cobra.Command{
		Use:   "list",
		Short: "Print milestone definitions",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer c.Close()

			defs, err := c.Platform.ListMilestones(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), defs)
		},
	}

	cmd.AddCommand(seed, list)
	return cmd
}

func reconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconcile pass against the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer c.Close()

			rep, err := c.Reconciler.Run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rep)
		},
	}
}

func evaluateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <address>",
		Short: "Sync an account's credential count and award reached milestones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, address := cmd.Context(), args[0]
			if _, err := c.Mirror.Stats().Ensure(ctx, address); err != nil {
				return err
			}
			if err := c.Accounts.SyncCredentials(ctx, address); err != nil {
				c.Logger.Warn(ctx, "credential count not synced", "address", address, "error", err)
			}
			awarded, err := c.Accounts.Evaluate(ctx, address)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), awarded)
		},
	}
}

var artworkTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
}

func artworkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artwork",
		Short: "Manage POAP artwork in object storage",
	}

	var contentType string
	upload := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image and print the URI to mint with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if contentType == "" {
				contentType = artworkTypes[strings.ToLower(filepath.Ext(args[0]))]
			}
			if contentType == "" {
				return fmt.Errorf("cannot tell the image type of %s; pass --content-type", args[0])
			}

			c, err := open(cmd, false)
			if err != nil {
				return err
			}
			defer c.Close()

			up, err := c.Artwork.PresignUpload(cmd.Context(), contentType)
			if err != nil {
				return err
			}
			if err := netx.UploadToPresignedURL(cmd.Context(), up.UploadURL, contentType, body); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), up.ImageURI)
			return nil
		},
	}
	upload.Flags().StringVar(&contentType, "content-type", "", "image MIME type (derived from the extension by default)")

	cmd.AddCommand(upload)
	return cmd
}
