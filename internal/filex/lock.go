package filex

import (
	"fmt"
	"os"
)

// Lock takes an exclusive advisory lock on the file at path, creating it if
// needed, and blocks until the lock is granted. The lock is held per open
// file, so it excludes other processes as well as other Lock calls in this
// one. The returned func releases it.
func Lock(path string) (func() error, error) {
	if err := EnsureParentDir(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return func() error {
		uerr := unlockFile(f)
		if err := f.Close(); err != nil && uerr == nil {
			uerr = err
		}
		return uerr
	}, nil
}
