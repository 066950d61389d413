package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/omuapps/obssync/internal/process"
	"github.com/omuapps/obssync/internal/storage"
	"github.com/omuapps/obssync/pkg/types"
)

// Defaults filled in by Load and Default.
const (
	DefaultLauncher       = "omuapps_plugin.py"
	DefaultModule         = "omuserver"
	DefaultScenePattern   = "*.json"
	DefaultPollIntervalMs = 200
	DefaultExitWindowMs   = 3000
	DefaultPort           = 26423
	DefaultLogLevel       = "INFO"
)

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/obssync/obssync.json[c])
// 2. Working directory config (obssync.json[c])
// 3. OBSSYNC_CONFIG file
// 4. Environment variables, after loading directory/.env
//
// Unset fields are filled with defaults. A file that exists but does not
// parse is an error.
func Load(directory string) (*types.Config, error) {
	config := &types.Config{}
	loaded := make(map[string]bool)

	loadOnce := func(path string) error {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, config)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		loaded[absPath] = true
		return nil
	}

	sources := []string{
		GlobalConfigPath(),
		filepath.Join(GetPaths().Config, "obssync.jsonc"),
	}
	if directory != "" {
		sources = append(sources,
			ProjectConfigPath(directory),
			filepath.Join(directory, "obssync.jsonc"),
		)
	}
	if configPath := os.Getenv("OBSSYNC_CONFIG"); configPath != "" {
		sources = append(sources, configPath)
	}
	for _, path := range sources {
		if err := loadOnce(path); err != nil {
			return nil, err
		}
	}

	if directory != "" {
		// Variables already in the environment win over .env.
		if err := godotenv.Load(filepath.Join(directory, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf(".env: %w", err)
		}
	}
	applyEnvOverrides(config)

	return ApplyDefaults(config), nil
}

func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate replaces {env:VAR} placeholders. Values are JSON-escaped so a
// Windows path in a variable stays a valid string.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		quoted, _ := json.Marshal(os.Getenv(string(name)))
		return quoted[1 : len(quoted)-1]
	})
}

func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.OBSDir != "" {
		target.OBSDir = source.OBSDir
	}
	if len(source.ProcessNames) > 0 {
		target.ProcessNames = source.ProcessNames
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}

	if source.Python != nil {
		if target.Python == nil {
			target.Python = &types.PythonConfig{}
		}
		setString(&target.Python.Executable, source.Python.Executable)
		setString(&target.Python.Directory, source.Python.Directory)
	}

	if source.Companion != nil {
		if target.Companion == nil {
			target.Companion = &types.CompanionConfig{}
		}
		setString(&target.Companion.ScriptDir, source.Companion.ScriptDir)
		setString(&target.Companion.Launcher, source.Companion.Launcher)
		setString(&target.Companion.Module, source.Companion.Module)
		setString(&target.Companion.WorkingDirectory, source.Companion.WorkingDirectory)
		if source.Companion.Args != nil {
			target.Companion.Args = source.Companion.Args
		}
	}

	if source.Scenes != nil {
		if target.Scenes == nil {
			target.Scenes = &types.ScenesConfig{}
		}
		setString(&target.Scenes.Pattern, source.Scenes.Pattern)
		if source.Scenes.NormalizePaths != nil {
			target.Scenes.NormalizePaths = source.Scenes.NormalizePaths
		}
	}

	if source.Lifecycle != nil {
		if target.Lifecycle == nil {
			target.Lifecycle = &types.LifecycleConfig{}
		}
		if source.Lifecycle.PollIntervalMs > 0 {
			target.Lifecycle.PollIntervalMs = source.Lifecycle.PollIntervalMs
		}
		if source.Lifecycle.ExitWindowMs > 0 {
			target.Lifecycle.ExitWindowMs = source.Lifecycle.ExitWindowMs
		}
		if source.Lifecycle.Relaunch != nil {
			target.Lifecycle.Relaunch = source.Lifecycle.Relaunch
		}
	}

	if source.Server != nil {
		// Replaced as a whole: EnableCORS has no unset state.
		server := *source.Server
		target.Server = &server
	}
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	if dir := os.Getenv("OBSSYNC_OBS_DIR"); dir != "" {
		config.OBSDir = dir
	}
	if exe := os.Getenv("OBSSYNC_PYTHON"); exe != "" {
		if config.Python == nil {
			config.Python = &types.PythonConfig{}
		}
		config.Python.Executable = exe
	}
	if dir := os.Getenv("OBSSYNC_PYTHON_DIR"); dir != "" {
		if config.Python == nil {
			config.Python = &types.PythonConfig{}
		}
		config.Python.Directory = dir
	}
	if dir := os.Getenv("OBSSYNC_SCRIPT_DIR"); dir != "" {
		if config.Companion == nil {
			config.Companion = &types.CompanionConfig{}
		}
		config.Companion.ScriptDir = dir
	}
	if level := os.Getenv("OBSSYNC_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	if raw := os.Getenv("OBSSYNC_NORMALIZE_PATHS"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			if config.Scenes == nil {
				config.Scenes = &types.ScenesConfig{}
			}
			config.Scenes.NormalizePaths = &v
		}
	}
}

// Default returns the configuration used when nothing is configured.
func Default() *types.Config {
	return ApplyDefaults(&types.Config{})
}

// ApplyDefaults fills unset fields of config in place and returns it.
func ApplyDefaults(config *types.Config) *types.Config {
	paths := GetPaths()

	if config.OBSDir == "" {
		config.OBSDir = DefaultOBSDir()
	}
	config.OBSDir = expandHome(config.OBSDir)
	if len(config.ProcessNames) == 0 {
		config.ProcessNames = process.DefaultNames(runtime.GOOS)
	}
	if config.LogLevel == "" {
		config.LogLevel = DefaultLogLevel
	}

	if config.Python == nil {
		config.Python = &types.PythonConfig{}
	}
	config.Python.Executable = expandHome(config.Python.Executable)

	if config.Companion == nil {
		config.Companion = &types.CompanionConfig{}
	}
	c := config.Companion
	if c.ScriptDir == "" {
		c.ScriptDir = paths.ScriptDir()
	}
	c.ScriptDir = expandHome(c.ScriptDir)
	if c.Launcher == "" {
		c.Launcher = DefaultLauncher
	}
	if c.Module == "" {
		c.Module = DefaultModule
	}

	if config.Scenes == nil {
		config.Scenes = &types.ScenesConfig{}
	}
	if config.Scenes.Pattern == "" {
		config.Scenes.Pattern = DefaultScenePattern
	}
	if config.Scenes.NormalizePaths == nil {
		normalize := true
		config.Scenes.NormalizePaths = &normalize
	}

	if config.Lifecycle == nil {
		config.Lifecycle = &types.LifecycleConfig{}
	}
	if config.Lifecycle.PollIntervalMs <= 0 {
		config.Lifecycle.PollIntervalMs = DefaultPollIntervalMs
	}
	if config.Lifecycle.ExitWindowMs <= 0 {
		config.Lifecycle.ExitWindowMs = DefaultExitWindowMs
	}
	if config.Lifecycle.Relaunch == nil {
		relaunch := true
		config.Lifecycle.Relaunch = &relaunch
	}

	if config.Server == nil {
		config.Server = &types.ServerConfig{EnableCORS: true}
	}
	if config.Server.Port == 0 {
		config.Server.Port = DefaultPort
	}

	return config
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// Save writes config to path as indented JSON.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return storage.WriteFileAtomic(path, append(data, '\n'), 0644)
}
