package scene

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/omuapps/obssync/internal/logging"
	"github.com/omuapps/obssync/internal/storage"
)

// DefaultPattern selects scene-collection files in basic/scenes.
const DefaultPattern = "*.json"

// Options configures directory-wide registration.
type Options struct {
	// Pattern filters file names (doublestar syntax). Defaults to DefaultPattern.
	Pattern string
	// Matcher compares registration paths. Defaults to normalized paths.
	Matcher PathMatcher
	// DryRun computes changes without writing files.
	DryRun bool
}

func (o Options) withDefaults() Options {
	if o.Pattern == "" {
		o.Pattern = DefaultPattern
	}
	if o.Matcher == nil {
		o.Matcher = DefaultNormalizedPaths()
	}
	return o
}

// Outcome is the result for one scene-collection file.
type Outcome struct {
	File       string `json:"file"`
	Registered bool   `json:"registered"`
	Changed    bool   `json:"changed"`
	Err        error  `json:"-"`
}

// Result collects per-file outcomes of a directory pass.
type Result struct {
	Outcomes []Outcome
}

// AnyChanged reports whether at least one document changed.
func (r *Result) AnyChanged() bool {
	for _, o := range r.Outcomes {
		if o.Changed {
			return true
		}
	}
	return false
}

// Changed returns the base names of changed files.
func (r *Result) Changed() []string {
	var names []string
	for _, o := range r.Outcomes {
		if o.Changed {
			names = append(names, filepath.Base(o.File))
		}
	}
	return names
}

// Failed returns the base names of files that could not be processed.
func (r *Result) Failed() []string {
	var names []string
	for _, o := range r.Outcomes {
		if o.Err != nil {
			names = append(names, filepath.Base(o.File))
		}
	}
	return names
}

// Files lists scene-collection files in dir matching pattern, without recursing.
func Files(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid scene pattern %q", pattern)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ok, _ := doublestar.Match(pattern, entry.Name()); ok {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

// RegisterAll registers launcherPath in every scene collection in dir.
// A failing document is recorded in its Outcome and does not stop the others.
func RegisterAll(ctx context.Context, dir, launcherPath string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	log := logging.Component("scene")

	files, err := Files(dir, opts.Pattern)
	if err != nil {
		return nil, fmt.Errorf("list scene collections: %w", err)
	}

	result := &Result{}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		changed, err := RegisterFile(file, launcherPath, opts)
		outcome := Outcome{File: file, Changed: changed, Registered: err == nil, Err: err}
		result.Outcomes = append(result.Outcomes, outcome)

		switch {
		case err != nil:
			log.Error().Err(err).Str("file", file).Msg("scene collection skipped")
		case changed:
			log.Info().Str("file", file).Bool("dryRun", opts.DryRun).Msg("launcher registered")
		default:
			log.Debug().Str("file", file).Msg("launcher already registered")
		}
	}
	return result, nil
}

// RegisterFile registers launcherPath in a single scene collection and
// persists the document only when it changed.
func RegisterFile(path, launcherPath string, opts Options) (bool, error) {
	opts = opts.withDefaults()

	doc, err := Load(path)
	if err != nil {
		return false, err
	}

	records, err := doc.EnsurePath(ScriptsToolPath...)
	if err != nil {
		return false, err
	}

	if _, err := records.RegisterIfAbsent(launcherPath, opts.Matcher); err != nil {
		return false, err
	}
	if !doc.Changed() {
		return false, nil
	}

	if !opts.DryRun {
		if err := storage.WriteFileAtomic(path, doc.Bytes(), 0644); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Inspect reports, without modifying anything, which collections already
// register launcherPath.
func Inspect(dir, launcherPath string, opts Options) ([]Outcome, error) {
	opts = opts.withDefaults()

	files, err := Files(dir, opts.Pattern)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(files))
	for _, file := range files {
		outcome := Outcome{File: file}
		doc, err := Load(file)
		if err != nil {
			outcome.Err = err
			outcomes = append(outcomes, outcome)
			continue
		}
		records, err := doc.Clone().EnsurePath(ScriptsToolPath...)
		if err != nil {
			outcome.Err = err
		} else {
			outcome.Registered = records.Contains(launcherPath, opts.Matcher)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}
