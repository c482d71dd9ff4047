package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ardnew/usbwire/scenario"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the available scenarios",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, sc := range scenario.All() {
			fmt.Fprintf(w, "%s\t%s\n", sc.Name, sc.Description)
		}
		return w.Flush()
	},
}
