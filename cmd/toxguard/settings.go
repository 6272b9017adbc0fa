package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/toxguard/internal/settings"
	"github.com/spf13/cobra"
)

// NewSettingsCmd creates the settings command and its subcommands.
func NewSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show and change the saved settings",
		Long: `Settings manages the threshold and keyword list saved in the data
directory. Saved settings override the configuration file and apply to every
scan. A running "toxguard serve" picks them up on SIGHUP.`,
	}
	cmd.AddCommand(newSettingsGetCmd(), newSettingsSetCmd(), newSettingsClearCmd())
	return cmd
}

func newSettingsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "List the saved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openSettings(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No settings saved.")
				return nil
			}
			fmt.Fprintf(out, "%-12s %-24s %s\n", "KEY", "VALUE", "UPDATED")
			for _, e := range entries {
				fmt.Fprintf(out, "%-12s %-24s %s\n", e.Key, e.Value, e.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newSettingsSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Save the threshold or the keyword list",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "threshold <value>",
		Short: "Save the toxicity threshold (0 to 1)",
		Long: `Save the toxicity threshold. A value that is not a number saves the
default threshold.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSettings(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			t, err := store.SetThreshold(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Threshold saved: %.2f\n", t)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "keywords [word]...",
		Short: "Save the keyword list",
		Long: `Save the keyword list of the keyword backend. Words are taken from the
arguments, or one per line from standard input when none are given.

Examples:
  toxguard settings set keywords idiot "shut up"
  toxguard settings set keywords < words.txt`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, "\n")
			if len(args) == 0 {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read keywords: %w", err)
				}
				text = string(b)
			}

			store, err := openSettings(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			words, err := store.SetKeywords(cmd.Context(), text)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d keyword(s) saved\n", len(words))
			return nil
		},
	})

	return cmd
}

func newSettingsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all saved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openSettings(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Settings cleared.")
			return nil
		},
	}
}

func openSettings(cmd *cobra.Command) (*settings.Store, error) {
	dir, err := cmd.Flags().GetString("data-dir")
	if err != nil || dir == "" {
		return nil, errors.New("no data directory")
	}
	store, err := settings.Open(dir, settings.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open settings: %w", err)
	}
	return store, nil
}
