package stressor

import (
	"fmt"
	"sort"
	"strings"
)

// Class is a bitmask grouping stressors by the subsystem they exercise. A
// stressor may belong to several classes.
type Class uint32

const (
	ClassCPU Class = 1 << iota
	ClassCPUCache
	ClassDevice
	ClassFilesystem
	ClassGPU
	ClassInterrupt
	ClassIO
	ClassMemory
	ClassNetwork
	ClassOS
	ClassPipe
	ClassScheduler
	ClassSecurity
	ClassVM
	// ClassPathological marks workloads that may hang or destabilise the
	// host; they only run behind an explicit opt-in.
	ClassPathological
)

var classNames = map[Class]string{
	ClassCPU:          "cpu",
	ClassCPUCache:     "cpu-cache",
	ClassDevice:       "device",
	ClassFilesystem:   "filesystem",
	ClassGPU:          "gpu",
	ClassInterrupt:    "interrupt",
	ClassIO:           "io",
	ClassMemory:       "memory",
	ClassNetwork:      "network",
	ClassOS:           "os",
	ClassPipe:         "pipe",
	ClassScheduler:    "scheduler",
	ClassSecurity:     "security",
	ClassVM:           "vm",
	ClassPathological: "pathological",
}

// ClassNames returns every class name, sorted.
func ClassNames() []string {
	names := make([]string, 0, len(classNames))
	for _, name := range classNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseClass resolves a single class name to its bit.
func ParseClass(name string) (Class, error) {
	munged := MungeName(name)
	for c, n := range classNames {
		if n == munged {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown class %q, valid classes are: %s",
		name, strings.Join(ClassNames(), ", "))
}

// Has reports whether c contains every bit of want.
func (c Class) Has(want Class) bool { return c&want == want }

// Intersects reports whether the two masks share any class bit.
func (c Class) Intersects(other Class) bool { return c&other != 0 }

func (c Class) String() string {
	var parts []string
	for bit := Class(1); bit != 0 && bit <= ClassPathological; bit <<= 1 {
		if c&bit != 0 {
			parts = append(parts, classNames[bit])
		}
	}
	return strings.Join(parts, ",")
}
