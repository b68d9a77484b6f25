// Package util contains any functions used across the application that don't match
// any other package
package util

import "os"

// IsRunningInDocker reports whether the process runs inside a docker container
func IsRunningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}

	return false
}
