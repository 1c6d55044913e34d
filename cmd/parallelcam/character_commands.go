package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"parallelcamera/internal/store"
)

func newCharacterCommand(ctx *commandContext) *cobra.Command {
	characterCmd := &cobra.Command{
		Use:     "character",
		Aliases: []string{"characters"},
		Short:   "Manage characters placed into generated scenes",
	}

	characterCmd.AddCommand(newCharacterListCommand(ctx))
	characterCmd.AddCommand(newCharacterAddCommand(ctx))
	characterCmd.AddCommand(newCharacterEditCommand(ctx))
	characterCmd.AddCommand(newCharacterRemoveCommand(ctx))
	characterCmd.AddCommand(newCharacterStatsCommand(ctx))
	characterCmd.AddCommand(newCharacterTopCommand(ctx))
	characterCmd.AddCommand(newCharacterSearchCommand(ctx))

	return characterCmd
}

func printCharacters(cmd *cobra.Command, list []store.CharacterRecord, asJSON bool) error {
	if asJSON {
		if list == nil {
			list = []store.CharacterRecord{}
		}
		return writeJSON(cmd, list)
	}
	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No characters")
		return nil
	}
	rows := make([][]string, 0, len(list))
	for _, c := range list {
		lastUsed := "-"
		if c.LastUsedAt != nil {
			lastUsed = formatMillis(*c.LastUsedAt)
		}
		rows = append(rows, []string{
			strconv.FormatInt(c.ID, 10),
			c.Name,
			truncate(c.Description, 30),
			strconv.FormatInt(c.UsageCount, 10),
			lastUsed,
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"ID", "Name", "Description", "Uses", "Last used"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
	))
	fmt.Fprintln(out)
	return nil
}

func newCharacterListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List characters, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				list, err := st.ListCharacters(cmd.Context())
				if err != nil {
					return err
				}
				return printCharacters(cmd, list, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newCharacterAddCommand(ctx *commandContext) *cobra.Command {
	var name, imagePath, description string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a character from a reference image",
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := readDataURI(imagePath, "image/jpeg")
			if err != nil {
				return err
			}
			return ctx.withStore(func(st *store.Store) error {
				id, err := st.CreateCharacter(cmd.Context(), store.CharacterRecord{
					Name:           name,
					ReferenceImage: image,
					Description:    description,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created character %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Character name (at most 20 characters)")
	cmd.Flags().StringVar(&imagePath, "image", "", "Reference image file")
	cmd.Flags().StringVar(&description, "description", "", "Short description (at most 50 characters)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

func newCharacterEditCommand(ctx *commandContext) *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Rename a character or change its description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var patch store.CharacterPatch
			if cmd.Flags().Changed("name") {
				patch.Name = &name
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if patch.Name == nil && patch.Description == nil {
				return fmt.Errorf("nothing to change: pass --name and/or --description")
			}
			return ctx.withStore(func(st *store.Store) error {
				rec, err := st.UpdateCharacter(cmd.Context(), id, patch)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated character %d (%s)\n", rec.ID, rec.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	return cmd
}

func newCharacterRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a character",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(st *store.Store) error {
				deleted, err := st.DeleteCharacter(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "Character %d not found\n", id)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted character %d\n", id)
				return nil
			})
		},
	}
}

func newCharacterStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize character usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				stats, err := st.CharacterStats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Characters:  %d\n", stats.TotalCount)
				fmt.Fprintf(out, "Total uses:  %d\n", stats.TotalUsage)
				if stats.MostUsed != nil {
					fmt.Fprintf(out, "Most used:   %s (%d uses)\n", stats.MostUsed.Name, stats.MostUsed.UsageCount)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newCharacterTopCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "top",
		Short: "List the most used characters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				list, err := st.MostUsed(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return printCharacters(cmd, list, asJSON)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Number of characters to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newCharacterSearchCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find characters whose name contains query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				list, err := st.SearchCharacters(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printCharacters(cmd, list, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
