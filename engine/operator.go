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

// Package engine defines the pull-based Operator protocol shared by
// every physical operator in this module, plus the Context an operator
// uses to allocate buffers and spill files within a numBuff budget.
package engine

import "github.com/relexec/engine/tuple"

// Operator is the common pull protocol every physical (and external
// leaf) operator implements. There are no callbacks, no suspension,
// and no cancellation token beyond Close.
//
// Open must be called exactly once before any call to Next. Next must
// not be called again once it has signalled end-of-stream (a nil
// Batch with a nil error). Close is idempotent and is always safe to
// call, including after a failed Open.
type Operator interface {
	// Open performs one-time initialization: allocating buffers,
	// opening children, materializing spill files. A non-nil error
	// is a configuration error (spec section 7) and the caller must
	// not call Next.
	Open() error

	// Next returns the next page of output tuples. End-of-stream is
	// signalled by a nil Batch and a nil error. The returned Batch
	// may be partially filled only if it is the final page.
	Next() (*tuple.Batch, error)

	// GetBlock returns up to k*pageCapacity tuples packed into a
	// single over-sized Batch. It is only required to be meaningful
	// on the left child of BlockNestedJoin; other operators may
	// implement it via DefaultGetBlock.
	GetBlock(k int) (*tuple.Batch, error)

	// Close deletes any spill files this operator created and
	// releases file handles. It is idempotent and best-effort: a
	// failure to delete a file is swallowed, matching spec section
	// 4.3's "close... swallows delete errors".
	Close() error

	// GetSchema returns the schema of rows this operator produces.
	GetSchema() tuple.Schema
}

// DefaultGetBlock fulfils GetBlock by concatenating k successive Next
// calls, as spec section 4.1 allows. It stops early (returning a
// smaller Batch) if the child reaches end-of-stream, and returns a nil
// Batch only if the very first Next call was already end-of-stream.
func DefaultGetBlock(op Operator, k int) (*tuple.Batch, error) {
	var all []tuple.Tuple
	for i := 0; i < k; i++ {
		b, err := op.Next()
		if err != nil {
			return nil, err
		}
		if b == nil {
			break
		}
		all = append(all, b.Tuples()...)
	}
	if all == nil {
		return nil, nil
	}
	return tuple.FromSlice(all), nil
}

// Condition is one equality predicate of a join: left.Attribute =
// right.Attribute. The planner supplies a list of these; both join
// operators resolve them to parallel key-index vectors via
// ResolveKeys.
type Condition struct {
	Left  string
	Right string
}

// ResolveKeys turns a list of equality Conditions into the parallel
// key-index vectors the join operators and their Comparators need,
// using the schemas' indexOf resolution (spec section 6).
func ResolveKeys(left, right tuple.Schema, conds []Condition) (leftIdx, rightIdx []int, err error) {
	leftIdx = make([]int, len(conds))
	rightIdx = make([]int, len(conds))
	for i, c := range conds {
		li := left.IndexOf(c.Left)
		if li < 0 {
			return nil, nil, &ConfigError{Msg: "unknown left attribute " + c.Left}
		}
		ri := right.IndexOf(c.Right)
		if ri < 0 {
			return nil, nil, &ConfigError{Msg: "unknown right attribute " + c.Right}
		}
		leftIdx[i] = li
		rightIdx[i] = ri
	}
	return leftIdx, rightIdx, nil
}
