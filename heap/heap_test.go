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

package heap

import (
	"math/rand"
	"testing"

	"github.com/relexec/engine/tuple"
	"github.com/relexec/engine/value"
)

// item pairs a tuple with the run index it came from -- the exact
// shape extsort/merge.go's k-way merge heaps over.
type item struct {
	t   tuple.Tuple
	src int
}

func lessItem(cmp tuple.Comparator) func(a, b item) bool {
	return func(a, b item) bool {
		c, err := cmp.Compare(a.t, b.t)
		if err != nil {
			panic(err)
		}
		return c <= 0
	}
}

func keysOf(items []item) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.t.At(0).Int()
	}
	return out
}

func isSortedAsc(vals []int64) bool {
	for i := 1; i < len(vals); i++ {
		if vals[i-1] > vals[i] {
			return false
		}
	}
	return true
}

// TestHeapOrdersTuplesByComparator exercises PushSlice/PopSlice over
// tuple.Tuple values keyed by a tuple.Comparator, the same item/less
// shape extsort/merge.go builds its k-way merge heap around.
func TestHeapOrdersTuplesByComparator(t *testing.T) {
	cmp := tuple.NewComparator(0)
	less := lessItem(cmp)

	rng := rand.New(rand.NewSource(1))
	var h []item
	const n = 200
	for i := 0; i < n; i++ {
		v := tuple.New(value.Int(int64(rng.Intn(1000))))
		PushSlice(&h, item{t: v, src: i % 4}, less)
	}

	var popped []item
	for len(h) > 0 {
		popped = append(popped, PopSlice(&h, less))
	}
	if len(popped) != n {
		t.Fatalf("expected %d items, got %d", n, len(popped))
	}
	if !isSortedAsc(keysOf(popped)) {
		t.Fatal("tuples not sorted by key after drain")
	}
}

// TestHeapFixSliceAfterMutation disturbs a heaped element in place and
// repairs the invariant with FixSlice, keyed on tuple.Tuple rather
// than a bare comparable.
func TestHeapFixSliceAfterMutation(t *testing.T) {
	cmp := tuple.NewComparator(0)
	less := lessItem(cmp)

	rng := rand.New(rand.NewSource(2))
	var h []item
	const n = 64
	for i := 0; i < n; i++ {
		v := tuple.New(value.Int(int64(rng.Intn(1000))))
		PushSlice(&h, item{t: v, src: 0}, less)
	}

	mid := len(h) / 2
	h[mid] = item{t: tuple.New(value.Int(-1)), src: 0}
	FixSlice(h, mid, less)

	var popped []item
	for len(h) > 0 {
		popped = append(popped, PopSlice(&h, less))
	}
	if !isSortedAsc(keysOf(popped)) {
		t.Fatal("tuples not sorted by key after FixSlice repair")
	}
	if popped[0].t.At(0).Int() != -1 {
		t.Fatalf("expected forced minimum -1 to surface first, got %d", popped[0].t.At(0).Int())
	}
}

// TestHeapOrderSlice exercises OrderSlice -- heapifying an
// already-populated slice in place -- over the same tuple/Comparator
// shape the merge pass uses.
func TestHeapOrderSlice(t *testing.T) {
	cmp := tuple.NewComparator(0)
	less := lessItem(cmp)

	vals := []int64{5, 3, 8, 1, 9, 2, 7, 4, 6, 0}
	h := make([]item, len(vals))
	for i, v := range vals {
		h[i] = item{t: tuple.New(value.Int(v)), src: i}
	}
	OrderSlice(h, less)

	var popped []item
	for len(h) > 0 {
		popped = append(popped, PopSlice(&h, less))
	}
	if !isSortedAsc(keysOf(popped)) {
		t.Fatal("tuples not sorted by key after OrderSlice")
	}
}
