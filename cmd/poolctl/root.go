package main

import (
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/config"
	"github.com/GriffinCanCode/poolkeeper/internal/offline/cachestore"
	"github.com/GriffinCanCode/poolkeeper/internal/storage"
)

// options holds the global flags. Defaults come from the same environment
// variables the server reads.
type options struct {
	storageDriver string
	storagePath   string
	cacheDriver   string
	cachePath     string
}

func (o *options) openStorage() (storage.Store, error) {
	return storage.Open(o.storageDriver, o.storagePath)
}

func (o *options) openCaches() (cachestore.Store, error) {
	return cachestore.Open(o.cacheDriver, o.cachePath)
}

func newRootCmd() *cobra.Command {
	cfg := config.LoadOrDefault()
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "poolctl",
		Short: "Inspect and maintain poolkeeper data",
		Long: `poolctl inspects and maintains the data poolkeeper keeps on disk.

Commands:
  poolctl buckets                  List cache buckets and their entry counts
  poolctl purge <bucket>...        Delete cache buckets
  poolctl pref get <client-id>     Show the remembered pool of a client
  poolctl manifest <dir>           Generate a precache manifest from a build`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.storageDriver, "storage-driver", cfg.Storage.Driver, "Preference storage driver: memory, sqlite")
	flags.StringVar(&opts.storagePath, "storage-path", cfg.Storage.Path, "Preference database path")
	flags.StringVar(&opts.cacheDriver, "cache-driver", cfg.Cache.Driver, "Cache storage driver: memory, sqlite")
	flags.StringVar(&opts.cachePath, "cache-path", cfg.Cache.Path, "Cache database path")

	cmd.AddCommand(
		newBucketsCmd(opts),
		newPurgeCmd(opts),
		newPrefCmd(opts),
		newManifestCmd(),
	)
	return cmd
}
