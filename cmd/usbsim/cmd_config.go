package main

import (
	"encoding/json"
	"fmt"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the settings file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings to the user config directory",
	Long: `Writes the built-in defaults to $XDG_CONFIG_HOME/usbsim/config.json, or to
the file named by --config. An existing file is kept unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			var err error
			if path, err = xdg.ConfigFile(settingsFile); err != nil {
				return err
			}
		}
		if !configInitForce && fileExists(path) {
			return fmt.Errorf("%s exists; use --force to overwrite", path)
		}
		if err := DefaultSettings().Save(path); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing settings file")
}
