// Package config provides configuration loading and path management.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths contains the standard paths for obssync data.
type Paths struct {
	Data   string // ~/.local/share/obssync
	Config string // ~/.config/obssync
	State  string // ~/.local/state/obssync
}

// GetPaths returns the standard paths for obssync data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "obssync"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "obssync"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "obssync"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// StoragePath returns the directory holding persisted reports.
func (p *Paths) StoragePath() string {
	return filepath.Join(p.Data, "storage")
}

// ScriptDir returns the default companion script directory.
func (p *Paths) ScriptDir() string {
	return filepath.Join(p.Data, "script")
}

// LogDir returns the directory for log files.
func (p *Paths) LogDir() string {
	return filepath.Join(p.State, "log")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("LOCALAPPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}

// DefaultOBSDir returns where OBS Studio keeps global.ini and basic/scenes.
func DefaultOBSDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "obs-studio")
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "obs-studio")
	default:
		return filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "obs-studio")
	}
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, "obssync.json")
}

// ProjectConfigPath returns the path to the config file in directory.
func ProjectConfigPath(directory string) string {
	return filepath.Join(directory, "obssync.json")
}
