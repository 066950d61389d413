package process

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/omuapps/obssync/pkg/types"
)

// ErrNothingToLaunch is returned for an empty launch spec.
var ErrNothingToLaunch = errors.New("launch spec has no command")

// Launch starts spec detached from the current process and returns once the
// child has started. The child is reaped in the background.
func Launch(spec *types.LaunchSpec) (int, error) {
	if spec.Empty() {
		return 0, ErrNothingToLaunch
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.WorkingDirectory
	cmd.SysProcAttr = detachedAttr()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start %s: %w", spec.Command[0], err)
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

// FormatCommand renders argv as a shell-quoted line for logs and prompts.
func FormatCommand(argv []string) string {
	parts := make([]string, len(argv))
	for i, arg := range argv {
		quoted, err := syntax.Quote(arg, syntax.LangBash)
		if err != nil {
			quoted = strconv.Quote(arg)
		}
		parts[i] = quoted
	}
	return strings.Join(parts, " ")
}
