package pipeline

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"sync"
	"time"
)

// Job IDs are 26-character Crockford base32 strings: a 48-bit millisecond
// timestamp, a 16-bit sequence within the millisecond and 64 random bits.
// IDs created by one process sort by creation time.

var jobIDEncoding = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

var (
	jobIDMu  sync.Mutex
	lastMS   uint64
	sequence uint16
)

func newJobID() string {
	jobIDMu.Lock()
	ms := uint64(time.Now().UnixMilli())
	if ms <= lastMS {
		// Clock went backwards or same millisecond: stay monotonic.
		ms = lastMS
		sequence++
	} else {
		lastMS = ms
		sequence = 0
	}
	seq := sequence
	jobIDMu.Unlock()

	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], ms<<16|uint64(seq))
	rand.Read(b[8:])
	return jobIDEncoding.EncodeToString(b[:])
}
