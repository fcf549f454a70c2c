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

package tuple

import "fmt"

// Batch is a fixed-capacity, insertion-ordered container of Tuples --
// the unit of I/O and the unit delivered by Operator.next. A Batch
// never holds more than Cap() tuples; only the final Batch of a
// stream may be partially filled.
type Batch struct {
	tuples []Tuple
	cap    int
}

// NewBatch allocates an empty Batch with the given capacity. capacity
// must be >= 1; callers are expected to have already checked
// PageCapacity's own >=1 invariant before calling this.
func NewBatch(capacity int) *Batch {
	if capacity < 1 {
		panic("tuple: batch capacity must be >= 1")
	}
	return &Batch{tuples: make([]Tuple, 0, capacity), cap: capacity}
}

// PageCapacity computes floor(pageSize/tupleSize), the shared capacity
// formula used to size every Batch produced by an operator. It returns
// an error instead of a capacity < 1, per spec section 3's "must be >=
// 1 (else the operator fails to open)" invariant.
func PageCapacity(pageSize, tupleSize int) (int, error) {
	if tupleSize <= 0 {
		return 0, fmt.Errorf("tuple: non-positive tuple size %d", tupleSize)
	}
	if pageSize < tupleSize {
		return 0, fmt.Errorf("tuple: page size %d smaller than tuple size %d", pageSize, tupleSize)
	}
	cap := pageSize / tupleSize
	if cap < 1 {
		return 0, fmt.Errorf("tuple: computed page capacity %d is less than 1", cap)
	}
	return cap, nil
}

// Cap reports the maximum number of tuples this Batch may hold.
func (b *Batch) Cap() int { return b.cap }

// Len reports how many tuples are currently in the Batch.
func (b *Batch) Len() int { return len(b.tuples) }

// Full reports whether the Batch has reached its capacity.
func (b *Batch) Full() bool { return len(b.tuples) >= b.cap }

// At returns the tuple at position i within the Batch, in insertion
// order.
func (b *Batch) At(i int) Tuple { return b.tuples[i] }

// Append adds t to the end of the Batch. It reports false without
// modifying the Batch if the Batch is already full.
func (b *Batch) Append(t Tuple) bool {
	if b.Full() {
		return false
	}
	b.tuples = append(b.tuples, t)
	return true
}

// Tuples exposes the underlying slice of tuples, in insertion order.
// Callers must not retain the slice past the next mutation of b.
func (b *Batch) Tuples() []Tuple { return b.tuples }

// FromSlice builds a (possibly over-full, for getBlock's use) Batch
// directly from a slice of tuples, without capacity enforcement. Used
// by getBlock's default "concatenate k batches" implementation to pack
// up to k*pageCapacity tuples into a single oversized Batch.
func FromSlice(tuples []Tuple) *Batch {
	return &Batch{tuples: tuples, cap: len(tuples)}
}
