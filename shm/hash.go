package shm

import "unsafe"

// hashJenkin is the one-at-a-time hash used to seal checksum records. It is
// not cryptographic; it only needs to make an accidental bit-flip in the
// stats area visible against the independently stored copy.
func hashJenkin(data []byte) uint32 {
	var h uint32
	for _, b := range data {
		h += uint32(b)
		h += h << 10
		h ^= h >> 6
	}
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return h
}

func (d *ChecksumData) bytes() []byte {
	return (*[unsafe.Sizeof(ChecksumData{})]byte)(unsafe.Pointer(d))[:]
}

// Finalise seals the record: zeroes the reserved padding and stores the hash
// over the counter and run flag. Workers call this immediately before exit,
// after the last counter update.
func (c *Checksum) Finalise() {
	c.Data.Pad = 0
	c.Hash = hashJenkin(c.Data.bytes())
}

// VerifyStats independently rebuilds a checksum from a stats slot and
// compares every field against the worker-written record. It reports which
// comparisons failed; all false means the slot is intact.
func (c *Checksum) VerifyStats(s *Stats) (counterBad, runOKBad, hashBad bool) {
	var expect Checksum
	expect.Data.Counter = s.Counter
	expect.Data.RunOK = s.RunOK
	expect.Finalise()

	counterBad = s.Counter != c.Data.Counter
	runOKBad = s.RunOK != c.Data.RunOK
	hashBad = expect.Hash != c.Hash
	return counterBad, runOKBad, hashBad
}
