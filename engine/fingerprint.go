// Copyright (C) 2024 the relexec authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package engine

import (
	"encoding/binary"
	"math"

	"github.com/dchest/siphash"
	"github.com/relexec/engine/tuple"
	"github.com/relexec/engine/value"
)

// fingerprintKey0/1 are fixed so that FingerprintKeys is deterministic
// across a process's lifetime; the fingerprint carries no secrecy
// requirement since it is diagnostic only (logged, never compared for
// correctness).
const (
	fingerprintKey0 uint64 = 0x5be82b37f1c9a21d
	fingerprintKey1 uint64 = 0x9e3779b97f4a7c15
)

// FingerprintKeys hashes the key columns of t (addressed by idx) into
// a short, stable diagnostic tag. It is used only for logging -- spec
// section 9's Open Question about a sort-merge duplicate group's temp
// buffer outgrowing numBuff is resolved by logging the offending key
// via this fingerprint rather than enforcing a hard cap (see
// SPEC_FULL.md).
func FingerprintKeys(t tuple.Tuple, idx []int) uint64 {
	var buf []byte
	for _, i := range idx {
		v := t.At(i)
		buf = append(buf, byte(v.Tag()))
		switch v.Tag() {
		case value.IntTag:
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(v.Int()))
			buf = append(buf, b[:]...)
		case value.FloatTag:
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(v.Float()))
			buf = append(buf, b[:]...)
		case value.StringTag:
			buf = append(buf, v.String()...)
		}
	}
	return siphash.Hash(fingerprintKey0, fingerprintKey1, buf)
}
