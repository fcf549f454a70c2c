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

// Package value implements the tagged scalar that flows through the
// execution engine: Tuples are ordered vectors of Value.
package value

import "fmt"

// Tag identifies the concrete representation held by a Value.
type Tag byte

const (
	// InvalidTag marks a zero-value Value that was never constructed
	// through one of the constructor functions.
	InvalidTag Tag = iota
	IntTag
	FloatTag
	StringTag
)

func (t Tag) String() string {
	switch t {
	case IntTag:
		return "int"
	case FloatTag:
		return "float"
	case StringTag:
		return "string"
	default:
		return "invalid"
	}
}

// Value is a tagged scalar: an integer, a single-precision float, or a
// string. The zero Value is InvalidTag and must never be compared.
type Value struct {
	tag Tag
	i   int64
	f   float32
	s   string
}

// Int constructs an integer Value.
func Int(i int64) Value { return Value{tag: IntTag, i: i} }

// Float constructs a single-precision float Value.
func Float(f float32) Value { return Value{tag: FloatTag, f: f} }

// String constructs a string Value.
func String(s string) Value { return Value{tag: StringTag, s: s} }

// Tag reports the concrete type held by v.
func (v Value) Tag() Tag { return v.tag }

// Int returns the integer payload of v. It is only meaningful when
// v.Tag() == IntTag.
func (v Value) Int() int64 { return v.i }

// Float returns the float payload of v. It is only meaningful when
// v.Tag() == FloatTag.
func (v Value) Float() float32 { return v.f }

// String returns the string payload of v. It is only meaningful when
// v.Tag() == StringTag.
func (v Value) String() string {
	switch v.tag {
	case IntTag:
		return fmt.Sprintf("%d", v.i)
	case FloatTag:
		return fmt.Sprintf("%g", v.f)
	case StringTag:
		return v.s
	default:
		return "<invalid>"
	}
}

// TagError reports a programming error: an unsupported or mismatched
// Value tag was seen at a point where execution cannot continue
// meaningfully. Per spec this is a fatal condition; callers that want
// process-abort semantics may still panic on it, but the engine
// package surfaces it as a typed error instead (see engine.FatalError).
type TagError struct {
	Op   string
	Got  Tag
	Want Tag // the other operand's tag when the two disagree; InvalidTag when Got itself is unsupported
}

func (e *TagError) Error() string {
	if e.Want == InvalidTag {
		return fmt.Sprintf("value: %s: unsupported tag %s", e.Op, e.Got)
	}
	return fmt.Sprintf("value: %s: mismatched tags %s vs %s", e.Op, e.Got, e.Want)
}

// Compare returns -1, 0, or 1 according to the total order defined for
// the tag of a and b. a and b must share the same tag; comparing
// values of different tags (or an InvalidTag value) returns a
// *TagError via the error return rather than panicking -- the caller
// (tuple.Comparator) decides whether that is fatal.
func Compare(a, b Value) (int, error) {
	if a.tag != b.tag {
		return 0, &TagError{Op: "compare", Got: a.tag, Want: b.tag}
	}
	switch a.tag {
	case IntTag:
		switch {
		case a.i < b.i:
			return -1, nil
		case a.i > b.i:
			return 1, nil
		default:
			return 0, nil
		}
	case FloatTag:
		switch {
		case a.f < b.f:
			return -1, nil
		case a.f > b.f:
			return 1, nil
		default:
			return 0, nil
		}
	case StringTag:
		switch {
		case a.s < b.s:
			return -1, nil
		case a.s > b.s:
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, &TagError{Op: "compare", Got: a.tag}
	}
}

// Equal reports whether a and b compare equal. It reports false (not
// an error) for mismatched tags, since equality is used on the hot
// join-predicate path where the planner is trusted to have aligned
// operand tags; Compare is the place mismatches are diagnosed.
func Equal(a, b Value) bool {
	c, err := Compare(a, b)
	return err == nil && c == 0
}
