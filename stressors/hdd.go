package stressors

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stressfleet/core/mwc"
	"stressfleet/core/status"
	"stressfleet/core/stressor"
)

// hddStressor writes, syncs and reads back a scratch file in the worker's
// temp directory. One bogo op is one block written or read.
type hddStressor struct {
	bytes uint64
	block uint64
}

var hddInfo = stressor.Info{
	ID:     5,
	Name:   "hdd",
	Short:  'd',
	Class:  stressor.ClassIO | stressor.ClassFilesystem | stressor.ClassOS,
	Verify: stressor.VerifyOptional,
	OpsOpt: "hdd-ops",
	Help: []stressor.Help{
		{Opt: "hdd-bytes", Description: "scratch file size per instance (default 16m)"},
		{Opt: "hdd-block", Description: "io block size (default 64k)"},
	},
}

func (h *hddStressor) Info() *stressor.Info { return &hddInfo }

func (h *hddStressor) SetDefault() {
	h.bytes = 16 << 20
	h.block = 64 << 10
}

func (h *hddStressor) Options() []string { return []string{"hdd-bytes", "hdd-block"} }

func (h *hddStressor) SetOption(name, value string) error {
	n, err := parseBytes(value)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s must be nonzero", name)
	}
	if name == "hdd-bytes" {
		h.bytes = n
	} else {
		h.block = n
	}
	return nil
}

// Supported refuses when the scratch location is not writable at all.
func (h *hddStressor) Supported(name string) error {
	f, err := os.CreateTemp("", "stressfleet-hdd-*")
	if err != nil {
		return fmt.Errorf("%s: no writable scratch space: %w", name, err)
	}
	path := f.Name()
	_ = f.Close()
	_ = os.Remove(path)
	return nil
}

func (h *hddStressor) Run(args *stressor.Args) int {
	size, block := h.bytes, h.block
	if size == 0 {
		size = 16 << 20
	}
	if block == 0 || block > size {
		block = 64 << 10
	}

	if err := os.MkdirAll(args.TempDir, 0o700); err != nil {
		return status.NoResource
	}
	path := filepath.Join(args.TempDir, "hdd.tmp")
	defer os.Remove(path)

	buf := make([]byte, block)
	rc := status.Success
	for args.Continue() && time.Now().Before(args.TimeEnd) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o600)
		if err != nil {
			rc = status.NoResource
			break
		}
		fill := byte(mwc.Rand32())
		for i := range buf {
			buf[i] = fill
		}
		okWrite := true
		for off := uint64(0); off < size && args.Continue(); off += block {
			if _, err := f.Write(buf); err != nil {
				// Scratch space ran out mid-file; not a failure of
				// the workload itself.
				okWrite = false
				rc = status.NoResource
				break
			}
			args.BumpCounter(1)
		}
		if okWrite {
			_ = f.Sync()
			if args.Verify {
				if _, err := f.Seek(0, 0); err == nil {
					rd := make([]byte, block)
					for off := uint64(0); off < size && args.Continue(); off += block {
						n, err := f.Read(rd)
						if err != nil {
							break
						}
						if n > 0 && (rd[0] != fill || rd[n-1] != fill) {
							rc = status.NotSuccess
							break
						}
						args.BumpCounter(1)
					}
				}
			}
		}
		_ = f.Close()
		if rc != status.Success {
			break
		}
	}
	return rc
}
