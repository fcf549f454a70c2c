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

package extsort

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/relexec/engine"
	"github.com/relexec/engine/leafscan"
	"github.com/relexec/engine/tuple"
	"github.com/relexec/engine/value"
)

func intSchema() tuple.Schema {
	return tuple.NewSchema(tuple.Column{Name: "k", Tag: value.IntTag, Width: 8})
}

func intRows(vals ...int) []tuple.Tuple {
	out := make([]tuple.Tuple, len(vals))
	for i, v := range vals {
		out[i] = tuple.New(value.Int(int64(v)))
	}
	return out
}

func drainAll(t *testing.T, op engine.Operator) []tuple.Tuple {
	t.Helper()
	var out []tuple.Tuple
	for {
		b, err := op.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if b == nil {
			break
		}
		if b.Len() < b.Cap() {
			// only the final page may be under-full
		}
		out = append(out, b.Tuples()...)
	}
	return out
}

func newTestContext(t *testing.T) *engine.Context {
	t.Helper()
	dir := t.TempDir()
	ctx := engine.NewContext(4, dir)
	ctx.Logf = func(format string, args ...interface{}) { t.Logf(format, args...) }
	return ctx
}

func TestExternalSortEmptyInput(t *testing.T) {
	ctx := newTestContext(t)
	child := leafscan.New(intSchema(), 64, nil)
	s := New(child, ctx, 64, 4, "left", []int{0}, false)

	if err := s.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	b, err := s.Next()
	if err != nil || b != nil {
		t.Fatalf("expected immediate end-of-stream, got batch=%v err=%v", b, err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	assertNoSpillFiles(t, ctx.TempDir)
}

func TestExternalSortSortsAndPreservesMultiset(t *testing.T) {
	ctx := newTestContext(t)
	rng := rand.New(rand.NewSource(1))
	n := 500
	vals := make([]int, n)
	for i := range vals {
		vals[i] = rng.Intn(1000)
	}
	child := leafscan.New(intSchema(), 64, intRows(vals...))
	// small numBuff to force many runs and multiple merge passes
	s := New(child, ctx, 64, 3, "left", []int{0}, false)

	if err := s.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	out := drainAll(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(out) != n {
		t.Fatalf("expected %d tuples, got %d", n, len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i-1].At(0).Int() > out[i].At(0).Int() {
			t.Fatalf("output not sorted at index %d: %d > %d", i, out[i-1].At(0).Int(), out[i].At(0).Int())
		}
	}
	assertSameMultiset(t, vals, out)
	assertNoSpillFiles(t, ctx.TempDir)
}

func TestExternalSortIdempotentOnSortedInput(t *testing.T) {
	ctx := newTestContext(t)
	sortedVals := []int{1, 1, 2, 3, 5, 8, 13, 21}
	child := leafscan.New(intSchema(), 32, intRows(sortedVals...))
	s := New(child, ctx, 32, 3, "left", []int{0}, false)
	if err := s.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	out := drainAll(t, s)
	s.Close()

	got := make([]int, len(out))
	for i, tup := range out {
		got[i] = int(tup.At(0).Int())
	}
	if len(got) != len(sortedVals) {
		t.Fatalf("length mismatch: %d vs %d", len(got), len(sortedVals))
	}
	for i := range got {
		if got[i] != sortedVals[i] {
			t.Fatalf("sorting an already-sorted stream changed order at %d: %d vs %d", i, got[i], sortedVals[i])
		}
	}
}

func TestExternalSortSortThenSortMatchesSingleSort(t *testing.T) {
	vals := []int{9, 4, 7, 1, 1, 3, 0, 2, 8}

	ctx1 := newTestContext(t)
	once := New(leafscan.New(intSchema(), 32, intRows(vals...)), ctx1, 32, 3, "left", []int{0}, false)
	if err := once.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	onceOut := drainAll(t, once)
	once.Close()

	ctx2 := newTestContext(t)
	onceOp := New(leafscan.New(intSchema(), 32, intRows(vals...)), ctx2, 32, 3, "left", []int{0}, false)
	if err := onceOp.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	onceOpOut := drainAll(t, onceOp)
	onceOp.Close()

	twiceCtx := newTestContext(t)
	firstPass := New(leafscan.New(intSchema(), 32, onceOpOut), twiceCtx, 32, 3, "right", []int{0}, false)
	if err := firstPass.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	twiceOut := drainAll(t, firstPass)
	firstPass.Close()

	if len(onceOut) != len(twiceOut) {
		t.Fatalf("length mismatch: %d vs %d", len(onceOut), len(twiceOut))
	}
	for i := range onceOut {
		if onceOut[i].At(0).Int() != twiceOut[i].At(0).Int() {
			t.Fatalf("sort-then-sort diverged at %d: %d vs %d", i, onceOut[i].At(0).Int(), twiceOut[i].At(0).Int())
		}
	}
}

func TestExternalSortPagesNeverOverfull(t *testing.T) {
	ctx := newTestContext(t)
	vals := make([]int, 37)
	for i := range vals {
		vals[i] = 37 - i
	}
	child := leafscan.New(intSchema(), 32, intRows(vals...)) // 32/8 = 4 tuples/page
	s := New(child, ctx, 32, 3, "left", []int{0}, false)
	if err := s.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	var seenUnderFull bool
	for {
		b, err := s.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if b == nil {
			break
		}
		if b.Len() > b.Cap() {
			t.Fatalf("batch over-full: %d > %d", b.Len(), b.Cap())
		}
		if b.Len() < b.Cap() {
			if seenUnderFull {
				t.Fatal("more than one under-full batch seen")
			}
			seenUnderFull = true
		}
	}
	s.Close()
}

func TestExternalSortCollidingDirectionsDoNotClash(t *testing.T) {
	dir := t.TempDir()
	ctx1 := engine.NewContext(3, dir)
	ctx2 := engine.NewContext(3, dir)

	left := New(leafscan.New(intSchema(), 16, intRows(3, 1, 2)), ctx1, 16, 3, "left", []int{0}, false)
	right := New(leafscan.New(intSchema(), 16, intRows(6, 5, 4)), ctx2, 16, 3, "right", []int{0}, false)

	if err := left.Open(); err != nil {
		t.Fatalf("left open: %v", err)
	}
	if err := right.Open(); err != nil {
		t.Fatalf("right open: %v", err)
	}
	lOut := drainAll(t, left)
	rOut := drainAll(t, right)
	left.Close()
	right.Close()

	if len(lOut) != 3 || len(rOut) != 3 {
		t.Fatalf("expected 3 rows each side, got %d/%d", len(lOut), len(rOut))
	}
}

func assertSameMultiset(t *testing.T, want []int, got []tuple.Tuple) {
	t.Helper()
	wantCount := map[int]int{}
	for _, v := range want {
		wantCount[v]++
	}
	for _, tup := range got {
		wantCount[int(tup.At(0).Int())]--
	}
	for k, c := range wantCount {
		if c != 0 {
			t.Fatalf("multiset mismatch for key %d: off by %d", k, c)
		}
	}
}

func assertNoSpillFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading temp dir: %v", err)
	}
	for _, e := range entries {
		t.Fatalf("spill file left behind: %s", filepath.Join(dir, e.Name()))
	}
}
