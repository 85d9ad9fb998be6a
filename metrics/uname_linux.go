//go:build linux

package metrics

import (
	"bytes"

	"golang.org/x/sys/unix"
)

func unameStrings() (sysname, release, machine string) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", "", ""
	}
	trim := func(b []byte) string {
		if i := bytes.IndexByte(b, 0); i >= 0 {
			b = b[:i]
		}
		return string(b)
	}
	return trim(uts.Sysname[:]), trim(uts.Release[:]), trim(uts.Machine[:])
}
