package consolidate

import (
	"encoding/binary"

	"lukechampine.com/blake3"

	"github.com/outofforest/bwtree/delta"
)

// Fingerprint hashes the sorted (key, value) projection of a Base node
// with BLAKE3. It exists so property tests can cheaply assert P9
// (consolidation preserves the observable mapping): hash the result of a
// full scan before and after a consolidation with no intervening write,
// and compare.
func Fingerprint(base *delta.Base) [32]byte {
	h := blake3.New(32, nil)
	buf := make([]byte, 16)
	for i, k := range base.Keys {
		binary.LittleEndian.PutUint64(buf[0:8], uint64(k))
		binary.LittleEndian.PutUint64(buf[8:16], base.Values[i])
		_, _ = h.Write(buf)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
