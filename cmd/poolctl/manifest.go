package main

import (
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/poolkeeper/internal/offline/manifest"
)

func newManifestCmd() *cobra.Command {
	var (
		patterns []string
		bucket   string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "manifest <dir>",
		Short: "Generate a precache manifest from a build directory",
		Example: `  poolctl manifest ./build --pattern 'icons/*.png' --pattern '*.{json,ico}'
  poolctl manifest ./build --bucket precache-v0.9.0 --format toml > offline.toml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Generate(cmd.Context(), args[0], bucket, patterns)
			if err != nil {
				return err
			}
			data, err := m.Encode(format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringArrayVar(&patterns, "pattern", nil, "Glob of files to precache, relative to dir (repeatable)")
	cmd.Flags().StringVar(&bucket, "bucket", manifest.DefaultBucket, "Cache bucket name")
	cmd.Flags().StringVarP(&format, "format", "f", manifest.FormatYAML, "Output format: yaml, toml")
	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{manifest.FormatYAML, manifest.FormatTOML}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}
