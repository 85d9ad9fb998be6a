//go:build !linux

package metrics

import "runtime"

func unameStrings() (sysname, release, machine string) {
	return runtime.GOOS, "", runtime.GOARCH
}
