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

// Tuple is an immutable, ordered vector of Values. Attribute positions
// are resolved against a Schema during planning; Tuple itself carries
// no schema reference.
type Tuple struct {
	vals []value.Value
}

// New constructs a Tuple from the given values. The slice is copied so
// callers may reuse their backing array.
func New(vals ...value.Value) Tuple {
	cp := make([]value.Value, len(vals))
	copy(cp, vals)
	return Tuple{vals: cp}
}

// Len reports the number of attributes in t.
func (t Tuple) Len() int { return len(t.vals) }

// At returns the value at position i.
func (t Tuple) At(i int) value.Value { return t.vals[i] }

// Concat returns the tuple l++r -- the concatenation used by both join
// operators to build an output row from a matching pair.
func Concat(l, r Tuple) Tuple {
	out := make([]value.Value, 0, len(l.vals)+len(r.vals))
	out = append(out, l.vals...)
	out = append(out, r.vals...)
	return Tuple{vals: out}
}

// Project returns a new Tuple containing the values at the given
// positions, in order. Used by tests and the demo CLI to reshape rows;
// the core operators never project.
func (t Tuple) Project(idx []int) Tuple {
	out := make([]value.Value, len(idx))
	for i, p := range idx {
		out[i] = t.vals[p]
	}
	return Tuple{vals: out}
}
