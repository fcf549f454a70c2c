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

import "github.com/relexec/engine/value"

// Comparator is a total order on tuples restricted to a set of key
// columns. Ties (equal on every key) return 0 -- tuples are then
// considered equal for join purposes, per spec section 3's invariant.
//
// A single Comparator is shared by both operands of a comparison: the
// same idx vector is applied to a and b, so joins between columns at
// different positions rely on the planner having pre-aligned the two
// schemas (spec section 9, Open Questions).
type Comparator struct {
	idx []int
}

// NewComparator builds a Comparator over the given key-column indices,
// compared pairwise in order.
func NewComparator(idx ...int) Comparator {
	return Comparator{idx: append([]int(nil), idx...)}
}

// Single builds a Comparator over a single key column -- the
// convenience form mentioned in spec section 4.2, delegating to the
// vector form with a unit-length vector.
func Single(col int) Comparator {
	return NewComparator(col)
}

// Compare compares a and b positionally over the comparator's key
// index vector. The first unequal pair determines the result under
// that column's Value total order. An unsupported or mismatched tag
// is a programming error: it is returned as a *value.TagError rather
// than causing a panic, per spec section 7's guidance for a systems
// implementation.
func (c Comparator) Compare(a, b Tuple) (int, error) {
	for _, i := range c.idx {
		r, err := value.Compare(a.At(i), b.At(i))
		if err != nil {
			return 0, err
		}
		if r != 0 {
			return r, nil
		}
	}
	return 0, nil
}

// CheckJoin is the equality specialization of Compare: true iff a and
// b agree on every key column. A tag error is treated as "not equal"
// -- callers that need to distinguish a type error from a genuine
// mismatch should call Compare directly.
func (c Comparator) CheckJoin(a, b Tuple) bool {
	r, err := c.Compare(a, b)
	return err == nil && r == 0
}

// Keys returns the key-column index vector, primarily so callers can
// validate arity against a paired Comparator (see ValidateKeys).
func (c Comparator) Keys() []int { return c.idx }
