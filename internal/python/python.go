// Package python discovers the interpreter whose installation OBS should load.
package python

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrNoInterpreter is returned when no python executable can be found.
var ErrNoInterpreter = errors.New("no python interpreter found")

const probeScript = `import json, sys
print(json.dumps({
    "executable": sys.executable,
    "version": "%d.%d.%d" % tuple(sys.version_info[:3]),
    "prefix": sys.prefix,
    "base_prefix": getattr(sys, "real_prefix", getattr(sys, "base_prefix", sys.prefix)),
}))`

// Interpreter describes a python installation as reported by itself.
type Interpreter struct {
	Executable string `json:"executable"`
	Version    string `json:"version"`
	Prefix     string `json:"prefix"`
	BasePrefix string `json:"base_prefix"`
}

// InVirtualEnv reports whether the interpreter runs inside a virtual environment.
func (i *Interpreter) InVirtualEnv() bool {
	return i.BasePrefix != "" && i.Prefix != i.BasePrefix
}

// Candidates are tried in order when no executable is configured.
func Candidates() []string {
	if runtime.GOOS == "windows" {
		return []string{"python", "python3", "py"}
	}
	return []string{"python3", "python"}
}

// Find returns the first candidate on PATH.
func Find() (string, error) {
	for _, name := range Candidates() {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", ErrNoInterpreter
}

// Probe runs executable and asks it for its location and version.
func Probe(ctx context.Context, executable string) (*Interpreter, error) {
	if executable == "" {
		found, err := Find()
		if err != nil {
			return nil, err
		}
		executable = found
	}

	out, err := exec.CommandContext(ctx, executable, "-c", probeScript).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("probe %s: %w: %s", executable, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("probe %s: %w", executable, err)
	}

	var info Interpreter
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("probe %s: unexpected output: %w", executable, err)
	}
	if info.Executable == "" {
		info.Executable = executable
	}
	return &info, nil
}

// Normalize converts separators to forward slashes, the form OBS stores.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, `\\`, `\`)
	return strings.ReplaceAll(p, `\`, "/")
}

// RyeDir is where rye keeps the toolchain for version under home.
func RyeDir(home, version string) string {
	return filepath.Join(home, ".rye", "py", "cpython@"+version)
}

// DesiredDirectory picks the installation directory OBS should load: the
// matching rye toolchain when running in a virtual environment and it
// exists, otherwise the parent of the executable's directory.
func DesiredDirectory(interp *Interpreter, home string, exists func(string) bool) string {
	if interp.InVirtualEnv() && home != "" && interp.Version != "" {
		rye := RyeDir(home, interp.Version)
		if exists(rye) {
			return Normalize(rye)
		}
	}
	exe := Normalize(interp.Executable)
	return path.Dir(path.Dir(exe))
}

// Resolution is the outcome of interpreter discovery.
type Resolution struct {
	Interpreter *Interpreter
	// Directory is the desired global.ini value, forward slashes.
	Directory string
}

// Resolver computes the desired interpreter directory. Zero fields use the
// running system.
type Resolver struct {
	// Executable to probe. Empty searches PATH.
	Executable string
	// Directory, when set, is used verbatim instead of the computed one.
	Directory string
	Home      string
	Exists    func(string) bool
	Probe     func(ctx context.Context, executable string) (*Interpreter, error)
}

// Resolve probes the interpreter and computes the desired directory.
func (r *Resolver) Resolve(ctx context.Context) (*Resolution, error) {
	probe := r.Probe
	if probe == nil {
		probe = Probe
	}

	interp, err := probe(ctx, r.Executable)
	if err != nil {
		if r.Directory == "" {
			return nil, err
		}
		dir := Normalize(r.Directory)
		return &Resolution{Interpreter: &Interpreter{Executable: executableIn(dir)}, Directory: dir}, nil
	}

	if r.Directory != "" {
		return &Resolution{Interpreter: interp, Directory: Normalize(r.Directory)}, nil
	}

	home := r.Home
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	exists := r.Exists
	if exists == nil {
		exists = dirExists
	}
	return &Resolution{Interpreter: interp, Directory: DesiredDirectory(interp, home, exists)}, nil
}

func executableIn(dir string) string {
	if runtime.GOOS == "windows" {
		return dir + "/python.exe"
	}
	return dir + "/bin/python3"
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
