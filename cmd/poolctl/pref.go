package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/poolkeeper/internal/interop"
	"github.com/GriffinCanCode/poolkeeper/internal/shared/id"
	"github.com/GriffinCanCode/poolkeeper/internal/storage"
)

func newPrefCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pref",
		Short: "Inspect client preferences",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <client-id>",
		Short: "Show the remembered pool name of a client",
		Long: `Show the remembered pool name of a client as stored JSON.

The client ID is the value of the poolkeeper_client cookie.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientID, err := id.ParseClientID(args[0])
			if err != nil {
				return err
			}

			store, err := opts.openStorage()
			if err != nil {
				return err
			}
			defer store.Close()

			value, ok, err := storage.NewScoped(store, clientID.String()).GetItem(cmd.Context(), interop.SessionPoolNameKey)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "(none)")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	})
	return cmd
}
