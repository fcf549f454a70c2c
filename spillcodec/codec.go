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

// Package spillcodec is the explicit page codec spec section 9 asks
// for in place of an ambient object-serialization mechanism: a
// length-prefixed frame per Batch, with fixed-width fields for
// scalars and length-prefixed fields for strings. It is the only
// package in this module that touches spill-file bytes directly.
package spillcodec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/relexec/engine/tuple"
	"github.com/relexec/engine/value"
)

// encodeBatch serializes b's tuples (under schema) into a flat byte
// payload: a uint32 tuple count, followed by each tuple's columns in
// schema order (fixed 8 bytes for int, fixed 4 bytes for float,
// uint32-length-prefixed bytes for string).
func encodeBatch(b *tuple.Batch, schema tuple.Schema) []byte {
	var out []byte
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(b.Len()))
	out = append(out, hdr[:]...)

	for _, t := range b.Tuples() {
		for i, col := range schema.Columns {
			v := t.At(i)
			switch col.Tag {
			case value.IntTag:
				var buf [8]byte
				binary.LittleEndian.PutUint64(buf[:], uint64(v.Int()))
				out = append(out, buf[:]...)
			case value.FloatTag:
				var buf [4]byte
				binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v.Float()))
				out = append(out, buf[:]...)
			case value.StringTag:
				s := v.String()
				var lbuf [4]byte
				binary.LittleEndian.PutUint32(lbuf[:], uint32(len(s)))
				out = append(out, lbuf[:]...)
				out = append(out, s...)
			default:
				// unreachable for a schema built through
				// tuple.NewSchema with a known value.Tag
				out = append(out, 0, 0, 0, 0)
			}
		}
	}
	return out
}

// decodeBatch parses a payload previously produced by encodeBatch
// back into a Batch. It returns an error if the payload is truncated
// or its declared tuple count doesn't fit the remaining bytes --
// spillcodec.Reader is responsible for treating that as a corrupt
// frame rather than a clean end-of-stream.
func decodeBatch(payload []byte, schema tuple.Schema, capacity int) (*tuple.Batch, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("spillcodec: short payload (%d bytes)", len(payload))
	}
	count := int(binary.LittleEndian.Uint32(payload[:4]))
	off := 4

	out := tuple.NewBatch(capacity)
	for n := 0; n < count; n++ {
		vals := make([]value.Value, len(schema.Columns))
		for i, col := range schema.Columns {
			switch col.Tag {
			case value.IntTag:
				if off+8 > len(payload) {
					return nil, fmt.Errorf("spillcodec: truncated int field at tuple %d", n)
				}
				vals[i] = value.Int(int64(binary.LittleEndian.Uint64(payload[off : off+8])))
				off += 8
			case value.FloatTag:
				if off+4 > len(payload) {
					return nil, fmt.Errorf("spillcodec: truncated float field at tuple %d", n)
				}
				vals[i] = value.Float(math.Float32frombits(binary.LittleEndian.Uint32(payload[off : off+4])))
				off += 4
			case value.StringTag:
				if off+4 > len(payload) {
					return nil, fmt.Errorf("spillcodec: truncated string length at tuple %d", n)
				}
				l := int(binary.LittleEndian.Uint32(payload[off : off+4]))
				off += 4
				if off+l > len(payload) {
					return nil, fmt.Errorf("spillcodec: truncated string payload at tuple %d", n)
				}
				vals[i] = value.String(string(payload[off : off+l]))
				off += l
			default:
				return nil, fmt.Errorf("spillcodec: unsupported column tag %s", col.Tag)
			}
		}
		if !out.Append(tuple.New(vals...)) {
			// capacity is advisory for decoded batches read back from
			// a run file: a prior merge pass may have packed more
			// tuples per frame than the caller's current pageCapacity
			// (e.g. when re-reading with a different schema-derived
			// capacity). Grow by rebuilding with exact capacity.
			grown := tuple.NewBatch(out.Len() + 1)
			for _, existing := range out.Tuples() {
				grown.Append(existing)
			}
			grown.Append(tuple.New(vals...))
			out = grown
		}
	}
	return out, nil
}
