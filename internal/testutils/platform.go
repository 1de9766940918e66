package testutils

import "runtime"

// IsUnix returns true if the current operating system is Unix-like.
func IsUnix() bool {
	if o := runtime.GOOS; o == "linux" || o == "darwin" {
		return true
	}
	return false
}
