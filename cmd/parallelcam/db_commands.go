package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"parallelcamera/internal/store"
)

func newDBCommand(ctx *commandContext) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Record store maintenance",
	}
	dbCmd.AddCommand(newDBInfoCommand(ctx))
	dbCmd.AddCommand(newDBClearCommand(ctx))
	return dbCmd
}

func newDBInfoCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show database path, schema version and record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				info, err := st.Info(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, info)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Path:        %s\n", info.Path)
				fmt.Fprintf(out, "Schema:      v%d\n", info.SchemaVersion)
				fmt.Fprintf(out, "History:     %d\n", info.HistoryCount)
				fmt.Fprintf(out, "Characters:  %d\n", info.CharacterCount)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newDBClearCommand(ctx *commandContext) *cobra.Command {
	var confirm string
	cmd := &cobra.Command{
		Use:   "clear <history|characters>",
		Short: "Delete every record in a collection",
		Long:  fmt.Sprintf("Deletes every record in a collection. Pass --confirm %q to proceed.", store.ClearConfirmation),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, err := store.ParseCollection(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(st *store.Store) error {
				removed, err := st.Clear(cmd.Context(), collection, confirm)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s records\n", removed, collection)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&confirm, "confirm", "", "Confirmation phrase")
	return cmd
}
