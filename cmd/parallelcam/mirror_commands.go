package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"parallelcamera/internal/mirror"
)

func newMirrorCommand(ctx *commandContext) *cobra.Command {
	mirrorCmd := &cobra.Command{
		Use:   "mirror",
		Short: "Inspect the server-side history mirror",
	}
	mirrorCmd.AddCommand(newMirrorListCommand(ctx))
	mirrorCmd.AddCommand(newMirrorDeleteCommand(ctx))
	return mirrorCmd
}

func newMirrorListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List mirrored entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withMirror(cmd.Context(), func(svc *mirror.Service) error {
				entries, err := svc.List(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Backend: %s (cap %d)\n", svc.Backend(), svc.Limit())
				if len(entries) == 0 {
					fmt.Fprintln(out, "No mirrored entries")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for i, e := range entries {
					rows = append(rows, []string{
						strconv.Itoa(i),
						e.ID,
						formatMillis(e.Timestamp),
						strconv.Itoa(len(e.Payload)),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"#", "ID", "Saved", "Bytes"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newMirrorDeleteCommand(ctx *commandContext) *cobra.Command {
	var id string
	var index int
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a mirrored entry by id or position",
		RunE: func(cmd *cobra.Command, args []string) error {
			byID := cmd.Flags().Changed("id")
			byIndex := cmd.Flags().Changed("index")
			if byID == byIndex {
				return fmt.Errorf("pass exactly one of --id or --index")
			}
			return ctx.withMirror(cmd.Context(), func(svc *mirror.Service) error {
				if byID {
					if err := svc.DeleteByID(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted mirror entry %s\n", id)
					return nil
				}
				count, err := svc.DeleteAt(cmd.Context(), index)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d entries remain\n", count)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Entry id")
	cmd.Flags().IntVar(&index, "index", 0, "Entry position, 0 being the newest")
	return cmd
}

