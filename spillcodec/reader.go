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
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"
	"github.com/relexec/engine/tuple"
)

// Reader reads Batch frames back from a run file written by Writer.
type Reader struct {
	r        io.Reader
	schema   tuple.Schema
	capacity int
}

// NewReader wraps src as a run-file Reader. capacity is the
// pageCapacity new Batches are built with; see decodeBatch for why a
// decoded batch may still grow past it.
func NewReader(src io.Reader, schema tuple.Schema, capacity int) *Reader {
	return &Reader{r: src, schema: schema, capacity: capacity}
}

// ErrCorrupt wraps a frame-level decoding failure. Per spec section
// 4.3's failure semantics, a read failure in Next must be treated as
// end-of-stream -- ReadBatch reports it as (nil, ErrCorrupt-wrapped
// err) so the caller can Logln it before folding it into the
// end-of-stream signal, per SPEC_FULL.md's resolution of the
// "deserialization errors silently truncate" open question.
var ErrCorrupt = errors.New("spillcodec: corrupt frame")

// ReadBatch reads the next frame. A clean end-of-file at a frame
// boundary returns (nil, nil, io.EOF)'s logical equivalent: (nil,
// nil). Any other failure -- truncated header, truncated payload,
// corrupt encoded batch -- returns (nil, err) with err wrapping
// ErrCorrupt.
func (r *Reader) ReadBatch() (*tuple.Batch, error) {
	var hdr [5]byte
	n, err := io.ReadFull(r.r, hdr[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: truncated frame header: %s", ErrCorrupt, err)
	}

	flags := hdr[0]
	length := binary.LittleEndian.Uint32(hdr[1:])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, fmt.Errorf("%w: truncated frame payload: %s", ErrCorrupt, err)
	}

	if flags&flagCompressed != 0 {
		decoded, err := s2.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: s2 decode: %s", ErrCorrupt, err)
		}
		payload = decoded
	}

	b, err := decodeBatch(payload, r.schema, r.capacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, err)
	}
	return b, nil
}
