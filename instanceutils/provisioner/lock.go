package provisioner

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ruteri/script-provisioning-agent/interfaces"
)

// LockMarkerPath returns the marker file recording that the script at scriptURI has run.
func LockMarkerPath(lockDir string, scriptURI string) string {
	return filepath.Join(lockDir, interfaces.NewScriptKey(scriptURI).String()+".lock")
}

// LockMarkerExists reports whether the marker for scriptURI is present.
func LockMarkerExists(lockDir string, scriptURI string) (bool, error) {
	_, err := os.Stat(LockMarkerPath(lockDir, scriptURI))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("could not check lock marker: %w", err)
}

// WriteLockMarker creates the empty marker for scriptURI. Creation is exclusive:
// if another invocation already created it, interfaces.ErrLockExists is returned.
func WriteLockMarker(lockDir string, scriptURI string) error {
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(LockMarkerPath(lockDir, scriptURI), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return interfaces.ErrLockExists
	} else if err != nil {
		return fmt.Errorf("failed to create lock marker: %w", err)
	}

	return f.Close()
}
