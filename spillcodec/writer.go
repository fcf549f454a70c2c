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

package spillcodec

import (
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/relexec/engine/tuple"
)

// frame layout on disk, one per Batch:
//
//	[1 byte]  flags: bit 0 set if payload is s2-compressed
//	[4 bytes] uint32 LE payload length
//	[N bytes] payload (encodeBatch output, optionally s2-compressed)
const (
	flagCompressed = 1 << 0
)

// Writer appends Batch frames to an underlying run file. It is the
// only place in this module a Batch touches a spill file.
type Writer struct {
	w        io.Writer
	schema   tuple.Schema
	compress bool
}

// NewWriter wraps dst as a run-file Writer. When compress is true,
// every frame's payload is run through an S2 block compressor before
// being written (github.com/klauspost/compress, the teacher's own
// compression dependency).
func NewWriter(dst io.Writer, schema tuple.Schema, compress bool) *Writer {
	return &Writer{w: dst, schema: schema, compress: compress}
}

// WriteBatch appends one frame for b.
func (w *Writer) WriteBatch(b *tuple.Batch) error {
	payload := encodeBatch(b, w.schema)
	flags := byte(0)
	if w.compress {
		payload = s2.Encode(nil, payload)
		flags |= flagCompressed
	}

	var hdr [5]byte
	hdr[0] = flags
	binary.LittleEndian.PutUint32(hdr[1:], uint32(len(payload)))
	if _, err := w.w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.w.Write(payload)
	return err
}
