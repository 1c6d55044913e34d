package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"parallelcamera/internal/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and manage capture history",
	}

	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryDeleteCommand(ctx))
	historyCmd.AddCommand(newHistoryStatsCommand(ctx))

	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var modeFlag string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List history records, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var mode store.Mode
			if modeFlag != "" {
				parsed, err := store.ParseMode(modeFlag)
				if err != nil {
					return err
				}
				mode = parsed
			}
			return ctx.withStore(func(st *store.Store) error {
				var (
					records []store.HistoryRecord
					err     error
				)
				switch {
				case mode != "":
					records, err = st.HistoryByMode(cmd.Context(), mode)
					if err == nil && limit > 0 && len(records) > limit {
						records = records[:limit]
					}
				case limit > 0:
					records, err = st.RecentHistory(cmd.Context(), limit)
				default:
					records, err = st.ListHistory(cmd.Context())
				}
				if err != nil {
					return err
				}
				if asJSON {
					if records == nil {
						records = []store.HistoryRecord{}
					}
					return writeJSON(cmd, records)
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No history records")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					rows = append(rows, []string{
						strconv.FormatInt(rec.ID, 10),
						formatMillis(rec.Timestamp),
						modeLabel(rec.Mode),
						rec.CharacterName,
						truncate(rec.Description, 40),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Taken", "Mode", "Character", "Description"},
					rows,
					[]columnAlignment{alignRight},
				))
				fmt.Fprintln(out)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&modeFlag, "mode", "", "Only show records of this mode (realistic, creative, meta)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many records")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one history record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(st *store.Store) error {
				rec, err := st.GetHistory(cmd.Context(), id)
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("history record %d not found", id)
				}
				return writeJSON(cmd, rec)
			})
		},
	}
}

func newHistoryDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a history record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(st *store.Store) error {
				deleted, err := st.DeleteHistory(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "History record %d not found\n", id)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted history record %d\n", id)
				return nil
			})
		},
	}
}

func newHistoryStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize history by mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				stats, err := st.HistoryStats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, stats)
				}
				rows := [][]string{
					{modeLabel(store.ModeRealistic), strconv.Itoa(stats.Realistic)},
					{modeLabel(store.ModeCreative), strconv.Itoa(stats.Creative)},
					{modeLabel(store.ModeMeta), strconv.Itoa(stats.Meta)},
					{"Total", strconv.Itoa(stats.Total)},
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderTable([]string{"Mode", "Records"}, rows, []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintln(out)
				if stats.Total > 0 {
					fmt.Fprintf(out, "Oldest: %s  Newest: %s\n", formatMillis(stats.Oldest), formatMillis(stats.Newest))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
