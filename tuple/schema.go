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

// Package tuple implements the page-sized tuple containers -- Tuple and
// Batch; a Block has no type of its own and is held by callers as a
// group of Batches or one oversized Batch -- and the Schema that resolves attribute names to
// positions and gives every tuple a fixed, schema-known byte size.
package tuple

import (
	"fmt"

	"github.com/relexec/engine/value"
)

// Column describes one attribute of a Schema. Width is the number of
// bytes this column contributes to a tuple's declared size: fixed for
// Int/Float, a declared maximum for String (the codec frames strings
// with their own length prefix on the wire, but Width still governs
// how many tuples fit in a page, per spec's "tupleSize" contract).
type Column struct {
	Name  string
	Tag   value.Tag
	Width int
}

// Schema is an ordered list of Columns. Attributes are addressed by
// their zero-based position in this list.
type Schema struct {
	Columns []Column
}

// NewSchema builds a Schema from a list of columns.
func NewSchema(cols ...Column) Schema {
	return Schema{Columns: append([]Column(nil), cols...)}
}

// Len reports the number of attributes in the schema.
func (s Schema) Len() int { return len(s.Columns) }

// IndexOf resolves an attribute name to its zero-based position, as
// required by the Operator ABI's getSchema().indexOf contract. It
// returns -1 if the attribute does not exist.
func (s Schema) IndexOf(attr string) int {
	for i, c := range s.Columns {
		if c.Name == attr {
			return i
		}
	}
	return -1
}

// TupleSize returns the fixed, schema-known serialized byte size of a
// tuple under this schema.
func (s Schema) TupleSize() int {
	n := 0
	for _, c := range s.Columns {
		n += c.Width
	}
	return n
}

// Concat returns the schema formed by appending the columns of r to
// the columns of s -- the schema of l++r, used by join operators to
// describe their output.
func (s Schema) Concat(r Schema) Schema {
	out := make([]Column, 0, len(s.Columns)+len(r.Columns))
	out = append(out, s.Columns...)
	out = append(out, r.Columns...)
	return Schema{Columns: out}
}

// ValidateKeys checks that leftIdx and rightIdx have the same length,
// that each is a valid set of key-column positions for left and right
// respectively, and that the columns paired at each key position
// carry the same tag.
// It returns an error (never panics) so that Operator.open can report
// a configuration failure per spec section 7.
func ValidateKeys(left, right Schema, leftIdx, rightIdx []int) error {
	if len(leftIdx) != len(rightIdx) {
		return fmt.Errorf("tuple: mismatched key arity: left has %d keys, right has %d", len(leftIdx), len(rightIdx))
	}
	for i := range leftIdx {
		li, ri := leftIdx[i], rightIdx[i]
		if li < 0 || li >= len(left.Columns) {
			return fmt.Errorf("tuple: left key index %d out of range [0,%d)", li, len(left.Columns))
		}
		if ri < 0 || ri >= len(right.Columns) {
			return fmt.Errorf("tuple: right key index %d out of range [0,%d)", ri, len(right.Columns))
		}
		if left.Columns[li].Tag != right.Columns[ri].Tag {
			return fmt.Errorf("tuple: key %d tag mismatch: left %s vs right %s", i, left.Columns[li].Tag, right.Columns[ri].Tag)
		}
	}
	return nil
}
