// Command usbsim drives the simulated full-speed USB device from the host
// side: it runs the packet-level scenarios, serves a device over named
// pipes, and encodes or decodes single packets.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ardnew/usbwire/pkg"
)

const component = pkg.ComponentCLI

var rootCmd = &cobra.Command{
	Use:   "usbsim",
	Short: "usbsim exercises a simulated full-speed USB device",
	Long: `Runs host-side scenarios against the usbwire device engine, serves a
device over named pipes for other processes, and translates single packets
between their field, byte and line (J/K/SE0) forms.

Settings are read from $XDG_CONFIG_HOME/usbsim/config.json when present;
flags override them.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	verboseLog bool
	logFormat  string
	configPath string

	// settings are the effective settings after setup.
	settings = DefaultSettings()
)

func init() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolVarP(&verboseLog, "verbose", "v", false, "Enable verbose debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format, text or json (default from settings)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Settings file (default: $XDG_CONFIG_HOME/usbsim/config.json)")
}

func main() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	encodeCmd.AddCommand(encodeTokenCmd)
	encodeCmd.AddCommand(encodeSOFCmd)
	encodeCmd.AddCommand(encodeDataCmd)
	encodeCmd.AddCommand(encodeHandshakeCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads settings and configures logging before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	path, err := settingsPath(configPath)
	if err != nil {
		return err
	}
	if settings, err = LoadSettings(path); err != nil {
		return err
	}

	level, err := pkg.ParseLogLevel(settings.LogLevel)
	if err != nil {
		return err
	}
	if verboseLog {
		level = slog.LevelDebug
	}
	pkg.SetLogLevel(level)

	name := settings.LogFormat
	if logFormat != "" {
		name = logFormat
	}
	format, err := pkg.ParseLogFormat(name)
	if err != nil {
		return err
	}
	pkg.SetLogOutput(cmd.ErrOrStderr(), format)
	pkg.LogDebug(component, "settings loaded", "path", path, "transport", settings.Transport)
	return nil
}

