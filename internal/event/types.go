package event

import "github.com/omuapps/obssync/pkg/types"

// ReconcileStartedData is the data for reconcile.started events.
type ReconcileStartedData struct {
	ID     string `json:"id"`
	DryRun bool   `json:"dryRun"`
}

// ReconcileFinishedData is the data for reconcile.finished events.
type ReconcileFinishedData struct {
	Report *types.Report `json:"report"`
}

// LifecycleChangedData is the data for lifecycle.state events.
type LifecycleChangedData struct {
	From string `json:"from"`
	To   string `json:"to"`
	PID  int32  `json:"pid,omitempty"`
}

// SettingUpdatedData is the data for setting.updated events.
type SettingUpdatedData struct {
	File     string `json:"file"`
	Section  string `json:"section"`
	Key      string `json:"key"`
	Previous string `json:"previous"`
	Value    string `json:"value"`
}

// LauncherWrittenData is the data for launcher.written events.
type LauncherWrittenData struct {
	File         string                      `json:"file"`
	Registration types.LauncherRegistration `json:"registration"`
}

// SceneData is the data for scene.registered, scene.failed and scene.discovered events.
type SceneData struct {
	File  string `json:"file"`
	Error string `json:"error,omitempty"`
}
