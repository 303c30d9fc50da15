//go:build !unix

package job

import (
	"errors"
	"os"
)

var errLocked = errors.New("locked by another process")

// lockFile is a no-op where flock is unavailable; exclusion is then per
// process only.
func lockFile(string, string) (*os.File, string, error) { return nil, "", nil }

func unlockFile(*os.File) {}
