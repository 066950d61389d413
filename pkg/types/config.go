package types

// Config represents the obssync configuration.
// Loaded from obssync.json / obssync.jsonc plus environment overrides.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// OBSDir is the OBS Studio configuration directory (contains global.ini and basic/scenes).
	OBSDir string `json:"obsDir,omitempty"`

	// ProcessNames are the executable names matched when looking for a running OBS.
	ProcessNames []string `json:"processNames,omitempty"`

	// Python interpreter selection
	Python *PythonConfig `json:"python,omitempty"`

	// Companion script / launcher registration
	Companion *CompanionConfig `json:"companion,omitempty"`

	// Scene collection registration
	Scenes *ScenesConfig `json:"scenes,omitempty"`

	// Stop / relaunch behavior
	Lifecycle *LifecycleConfig `json:"lifecycle,omitempty"`

	// Plugin HTTP surface
	Server *ServerConfig `json:"server,omitempty"`

	// LogLevel is DEBUG|INFO|WARN|ERROR.
	LogLevel string `json:"logLevel,omitempty"`
}

// PythonConfig selects the interpreter whose directory is written to global.ini.
type PythonConfig struct {
	// Executable is probed for its version and prefixes. Defaults to python3/python on PATH.
	Executable string `json:"executable,omitempty"`
	// Directory skips probing and is used verbatim as the desired interpreter directory.
	Directory string `json:"directory,omitempty"`
}

// CompanionConfig describes where the companion script lives and how it is started.
type CompanionConfig struct {
	// ScriptDir holds the launcher script and its registration file.
	ScriptDir string `json:"scriptDir,omitempty"`
	// Launcher is the script file name registered in every scene collection.
	Launcher string `json:"launcher,omitempty"`
	// Module is the python module the bootstrap stub runs (python -m <module>).
	Module string `json:"module,omitempty"`
	// Args are appended after the module.
	Args []string `json:"args,omitempty"`
	// WorkingDirectory for the companion process. Defaults to the current directory.
	WorkingDirectory string `json:"workingDirectory,omitempty"`
}

// ScenesConfig controls scene-collection registration.
type ScenesConfig struct {
	// Pattern filters files in basic/scenes (doublestar syntax, non-recursive).
	Pattern string `json:"pattern,omitempty"`
	// NormalizePaths compares registration paths after cleaning them. False compares raw strings.
	NormalizePaths *bool `json:"normalizePaths,omitempty"`
}

// LifecycleConfig controls the stop/relaunch cycle.
type LifecycleConfig struct {
	// PollIntervalMs is how often the process is polled while waiting for it to exit.
	PollIntervalMs int `json:"pollIntervalMs,omitempty"`
	// ExitWindowMs is how long to poll before asking the user to retry or cancel.
	ExitWindowMs int `json:"exitWindowMs,omitempty"`
	// Relaunch restarts OBS after a successful pass. Defaults to true.
	Relaunch *bool `json:"relaunch,omitempty"`
}

// ServerConfig configures the standalone plugin HTTP server.
type ServerConfig struct {
	Port       int  `json:"port,omitempty"`
	EnableCORS bool `json:"enableCors,omitempty"`
}
