//go:build !windows

package process

import "fmt"

func closeProcessWindows(pid uint32) error {
	return fmt.Errorf("%w: window close requires windows", ErrUnsupportedPlatform)
}
