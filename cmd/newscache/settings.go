package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read or write settings",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get <id>",
			Short: "Print a setting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				value, ok := c.app.Settings.Get(cmd.Context(), args[0])
				if !ok {
					return fmt.Errorf("setting %q not found", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), value)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <id> <value>",
			Short: "Store a setting, replacing any previous value",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				if !c.app.Settings.Save(cmd.Context(), args[0], args[1]) {
					return errors.New("setting not saved")
				}
				return nil
			},
		},
	)

	return cmd
}
