//go:build windows

package process

import (
	"errors"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	wmClose  = 0x0010
	gwOwner  = 4
	enumNext = 1
)

var (
	user32                       = windows.NewLazySystemDLL("user32.dll")
	procEnumWindows              = user32.NewProc("EnumWindows")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procGetWindow                = user32.NewProc("GetWindow")
	procPostMessageW             = user32.NewProc("PostMessageW")
)

var errNoWindow = errors.New("process has no visible top-level window")

// Callbacks created by windows.NewCallback are never released, so a single
// one is shared and enumeration is serialized.
var (
	enumMu      sync.Mutex
	enumPID     uint32
	enumTargets []uintptr
	enumProc    = windows.NewCallback(func(hwnd, _ uintptr) uintptr {
		var owner uint32
		procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&owner)))
		if owner != enumPID {
			return enumNext
		}
		visible, _, _ := procIsWindowVisible.Call(hwnd)
		parent, _, _ := procGetWindow.Call(hwnd, gwOwner)
		if visible != 0 && parent == 0 {
			enumTargets = append(enumTargets, hwnd)
		}
		return enumNext
	})
)

func closeProcessWindows(pid uint32) error {
	enumMu.Lock()
	defer enumMu.Unlock()

	enumPID = pid
	enumTargets = enumTargets[:0]
	procEnumWindows.Call(enumProc, 0)

	if len(enumTargets) == 0 {
		return errNoWindow
	}
	for _, hwnd := range enumTargets {
		ok, _, err := procPostMessageW.Call(hwnd, wmClose, 0, 0)
		if ok == 0 {
			return err
		}
	}
	return nil
}
