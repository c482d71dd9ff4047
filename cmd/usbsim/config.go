package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/ardnew/usbwire/pkg"
	"github.com/ardnew/usbwire/scenario"
)

// settingsFile is the settings path relative to the XDG config directories.
const settingsFile = "usbsim/config.json"

// Settings holds the user defaults for usbsim.
type Settings struct {
	LogLevel   string `json:"logLevel"`
	LogFormat  string `json:"logFormat"`
	Transport  string `json:"transport"` // "direct", "loop", "fifo"
	Parallel   int    `json:"parallel"`
	Timeout    string `json:"timeout"`    // per scenario
	Turnaround string `json:"turnaround"` // host response timeout
	BusDir     string `json:"busDir"`     // "" = temporary
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		LogLevel:   "warn",
		LogFormat:  "text",
		Transport:  scenario.TransportDirect.String(),
		Parallel:   1,
		Timeout:    scenario.DefaultTimeout.String(),
		Turnaround: scenario.DefaultTurnaround.String(),
	}
}

// settingsPath returns explicit when set, otherwise the first settings
// file found in the XDG config directories, otherwise "".
func settingsPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	path, err := xdg.SearchConfigFile(settingsFile)
	if err != nil {
		// No settings file anywhere.
		return "", nil
	}
	return path, nil
}

// LoadSettings reads settings from path over the defaults. A missing file
// or an empty path yields the defaults; an invalid file is reported and
// ignored.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		pkg.LogWarn(component, "invalid settings file, using defaults", "path", path, "error", err)
		return DefaultSettings(), nil
	}
	return s, nil
}

// Save writes the settings to path through a temporary file.
func (s Settings) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Options converts the settings to scenario run options.
func (s Settings) Options() (scenario.Options, error) {
	var opts scenario.Options
	var err error
	if opts.Transport, err = scenario.ParseTransport(s.Transport); err != nil {
		return opts, err
	}
	if opts.Timeout, err = parseDuration("timeout", s.Timeout); err != nil {
		return opts, err
	}
	if opts.Turnaround, err = parseDuration("turnaround", s.Turnaround); err != nil {
		return opts, err
	}
	opts.Parallel = s.Parallel
	opts.BusDir = s.BusDir
	return opts, nil
}

// parseDuration parses a duration setting; "" selects the run default.
func parseDuration(name, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s %q: %w", name, s, pkg.ErrInvalidParameter)
	}
	return d, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
