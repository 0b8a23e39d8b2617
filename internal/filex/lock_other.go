//go:build !unix && !windows

package filex

import (
	"os"
	"sync"
)

// No advisory locks here; serialize within the process only.
var processLock sync.Mutex

func lockFile(*os.File) error {
	processLock.Lock()
	return nil
}

func unlockFile(*os.File) error {
	processLock.Unlock()
	return nil
}
