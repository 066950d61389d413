// Package launcher maintains the registration file the companion bootstrap
// script reads to start the companion process.
package launcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/omuapps/obssync/internal/storage"
	"github.com/omuapps/obssync/pkg/types"
)

// FileName is the registration file next to the launcher script.
const FileName = "config.json"

// Companion describes how the companion process is started.
type Companion struct {
	// ScriptDir holds the launcher script and FileName.
	ScriptDir string
	// Script is the launcher script file name.
	Script string
	// Python is the interpreter executable.
	Python string
	// Module is run with python -m.
	Module string
	Args   []string
	// WorkingDirectory defaults to the current directory.
	WorkingDirectory string
}

// ScriptPath is the path registered in scene collections.
func (c *Companion) ScriptPath() string {
	return filepath.Join(c.ScriptDir, c.Script)
}

// ConfigPath is where the registration file is written.
func (c *Companion) ConfigPath() string {
	return filepath.Join(c.ScriptDir, FileName)
}

// Registration builds the file contents: the interpreter, -m and the module,
// followed by the extra arguments.
func (c *Companion) Registration() (types.LauncherRegistration, error) {
	if c.Python == "" {
		return types.LauncherRegistration{}, errors.New("companion python executable not set")
	}
	if c.Module == "" {
		return types.LauncherRegistration{}, errors.New("companion module not set")
	}

	cwd := c.WorkingDirectory
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return types.LauncherRegistration{}, err
		}
		cwd = wd
	}

	args := make([]string, 0, 3+len(c.Args))
	args = append(args, c.Python, "-m", c.Module)
	args = append(args, c.Args...)
	return types.LauncherRegistration{WorkingDirectory: cwd, Args: args}, nil
}

// Write persists the registration unless the file already holds the same
// content. It reports whether the file changed. With dryRun nothing is written.
func (c *Companion) Write(dryRun bool) (bool, types.LauncherRegistration, error) {
	reg, err := c.Registration()
	if err != nil {
		return false, reg, err
	}

	data, err := json.Marshal(reg)
	if err != nil {
		return false, reg, err
	}

	if dryRun {
		current, err := os.ReadFile(c.ConfigPath())
		return err != nil || string(current) != string(data), reg, nil
	}

	if err := os.MkdirAll(c.ScriptDir, 0755); err != nil {
		return false, reg, fmt.Errorf("create script directory: %w", err)
	}
	changed, err := storage.WriteFileIfChanged(c.ConfigPath(), data, 0644)
	if err != nil {
		return false, reg, fmt.Errorf("write %s: %w", FileName, err)
	}
	return changed, reg, nil
}

// Read loads the current registration file.
func Read(dir string) (*types.LauncherRegistration, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	var reg types.LauncherRegistration
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", FileName, err)
	}
	return &reg, nil
}
