package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newBucketsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "buckets",
		Short: "List cache buckets",
		Long: `List cache buckets in creation order with their entry counts.

The current bucket is the one named in the offline manifest; any other
bucket is deleted the next time a worker activates.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			caches, err := opts.openCaches()
			if err != nil {
				return err
			}
			defer caches.Close()

			ctx := cmd.Context()
			names, err := caches.Keys(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BUCKET\tENTRIES")
			for _, name := range names {
				bucket, err := caches.Open(ctx, name)
				if err != nil {
					return err
				}
				keys, err := bucket.Keys(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\n", name, len(keys))
			}
			return w.Flush()
		},
	}
}

func newPurgeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <bucket>...",
		Short: "Delete cache buckets",
		Example: `  poolctl purge precache-v0.8.15
  poolctl purge precache-v0.8.14 precache-v0.8.15`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caches, err := opts.openCaches()
			if err != nil {
				return err
			}
			defer caches.Close()

			for _, name := range args {
				deleted, err := caches.Delete(cmd.Context(), name)
				if err != nil {
					return fmt.Errorf("purge %s: %w", name, err)
				}
				if deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "not found %s\n", name)
				}
			}
			return nil
		},
	}
}
