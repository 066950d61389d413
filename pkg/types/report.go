// Package types provides the core data types shared by obssync packages.
package types

import "encoding/json"

// LaunchSpec is the minimal information needed to start a process
// identically to how it was last observed running.
type LaunchSpec struct {
	Command          []string `json:"command"`
	WorkingDirectory string   `json:"workingDirectory"`
}

// Empty reports whether there is nothing to launch.
func (s *LaunchSpec) Empty() bool {
	return s == nil || len(s.Command) == 0
}

// RegistrationRecord is an entry in a scene collection's scripts-tool module.
type RegistrationRecord struct {
	Path     string          `json:"path"`
	Settings json.RawMessage `json:"settings"`
}

// LauncherRegistration is the file the companion bootstrap stub reads to
// start the real service.
type LauncherRegistration struct {
	WorkingDirectory string   `json:"cwd"`
	Args             []string `json:"args"`
}

// Report summarizes one reconciliation pass.
type Report struct {
	ID       string     `json:"id"`
	DryRun   bool       `json:"dryRun,omitempty"`
	Time     ReportTime `json:"time"`
	Desired  string     `json:"desiredInterpreter"`
	Previous string     `json:"previousInterpreter,omitempty"`

	InterpreterChanged bool     `json:"interpreterChanged"`
	LauncherChanged    bool     `json:"launcherChanged"`
	ScenesChanged      []string `json:"scenesChanged,omitempty"`
	ScenesFailed       []string `json:"scenesFailed,omitempty"`

	Lifecycle *LifecycleReport `json:"lifecycle,omitempty"`
	Errors    []string         `json:"errors,omitempty"`
}

// ReportTime contains timestamps for a report, in unix milliseconds.
type ReportTime struct {
	Started  int64 `json:"started"`
	Finished int64 `json:"finished"`
}

// LifecycleReport records what happened to the target process.
type LifecycleReport struct {
	WasRunning bool        `json:"wasRunning"`
	FinalState string      `json:"finalState"`
	Launch     *LaunchSpec `json:"launch,omitempty"`
	Relaunched bool        `json:"relaunched"`
	Error      string      `json:"error,omitempty"`
}

// Changed reports whether the pass modified anything on disk.
func (r *Report) Changed() bool {
	return r.InterpreterChanged || r.LauncherChanged || len(r.ScenesChanged) > 0
}
