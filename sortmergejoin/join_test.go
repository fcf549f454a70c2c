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

package sortmergejoin

import (
	"testing"

	"github.com/relexec/engine"
	"github.com/relexec/engine/extsort"
	"github.com/relexec/engine/leafscan"
	"github.com/relexec/engine/tuple"
	"github.com/relexec/engine/value"
)

func keySchema() tuple.Schema {
	return tuple.NewSchema(tuple.Column{Name: "k", Tag: value.IntTag, Width: 8})
}

func keyRows(vals ...int) []tuple.Tuple {
	out := make([]tuple.Tuple, len(vals))
	for i, v := range vals {
		out[i] = tuple.New(value.Int(int64(v)))
	}
	return out
}

func sortedChild(t *testing.T, ctx *engine.Context, direction string, pageSize, numBuff int, vals []int) engine.Operator {
	t.Helper()
	leaf := leafscan.New(keySchema(), pageSize, keyRows(vals...))
	return extsort.New(leaf, ctx, pageSize, numBuff, direction, []int{0}, false)
}

func drainJoin(t *testing.T, j *Join) []tuple.Tuple {
	t.Helper()
	var out []tuple.Tuple
	for {
		b, err := j.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if b == nil {
			break
		}
		out = append(out, b.Tuples()...)
	}
	return out
}

func TestSortMergeJoinDuplicateGroupsSingleBatch(t *testing.T) {
	ctx := engine.NewContext(4, t.TempDir())
	ctx.Logf = func(format string, args ...interface{}) { t.Logf(format, args...) }

	left := sortedChild(t, ctx, "left", 64, 4, []int{1, 2, 2, 3})
	right := sortedChild(t, ctx, "right", 64, 4, []int{2, 2, 4})

	j := New(left, right, ctx, 64, 4, []engine.Condition{{Left: "k", Right: "k"}})
	if err := j.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	out := drainJoin(t, j)
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(out) != 4 {
		t.Fatalf("expected 4 joined rows (2x2 on key=2), got %d", len(out))
	}
	for _, row := range out {
		if row.At(0).Int() != 2 || row.At(1).Int() != 2 {
			t.Fatalf("unexpected joined row: left=%d right=%d", row.At(0).Int(), row.At(1).Int())
		}
	}
}

func TestSortMergeJoinDuplicateGroupSpansPages(t *testing.T) {
	ctx := engine.NewContext(3, t.TempDir())
	ctx.Logf = func(format string, args ...interface{}) { t.Logf(format, args...) }

	rightVals := []int{7, 7, 7, 7, 7, 9}
	leftVals := []int{7, 7, 9}

	left := sortedChild(t, ctx, "left", 16, 3, leftVals) // 16/8 = 2 tuples/page
	right := sortedChild(t, ctx, "right", 16, 3, rightVals)

	j := New(left, right, ctx, 32, 3, []engine.Condition{{Left: "k", Right: "k"}})
	if err := j.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	out := drainJoin(t, j)
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := 2*5 + 1*1 // two 7s on the left times five 7s on the right, plus one 9x1
	if len(out) != want {
		t.Fatalf("expected %d rows, got %d", want, len(out))
	}
}

func TestSortMergeJoinCardinalityMatchesEquiJoinCount(t *testing.T) {
	ctx := engine.NewContext(4, t.TempDir())
	ctx.Logf = func(format string, args ...interface{}) { t.Logf(format, args...) }

	leftVals := []int{1, 1, 1, 2, 3, 3, 5, 8}
	rightVals := []int{1, 1, 3, 4, 5, 5, 5}

	countL := map[int]int{}
	for _, v := range leftVals {
		countL[v]++
	}
	countR := map[int]int{}
	for _, v := range rightVals {
		countR[v]++
	}
	want := 0
	for k, cl := range countL {
		want += cl * countR[k]
	}

	left := sortedChild(t, ctx, "left", 32, 3, leftVals)
	right := sortedChild(t, ctx, "right", 32, 3, rightVals)

	j := New(left, right, ctx, 32, 3, []engine.Condition{{Left: "k", Right: "k"}})
	if err := j.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	out := drainJoin(t, j)
	j.Close()

	if len(out) != want {
		t.Fatalf("expected cardinality %d, got %d", want, len(out))
	}
	for _, row := range out {
		if row.At(0).Int() != row.At(1).Int() {
			t.Fatalf("non-matching join key pair in output: %d vs %d", row.At(0).Int(), row.At(1).Int())
		}
	}
}

func TestSortMergeJoinEmptySide(t *testing.T) {
	ctx := engine.NewContext(4, t.TempDir())
	left := sortedChild(t, ctx, "left", 32, 4, nil)
	right := sortedChild(t, ctx, "right", 32, 4, []int{1, 2, 3})

	j := New(left, right, ctx, 32, 4, []engine.Condition{{Left: "k", Right: "k"}})
	if err := j.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	out := drainJoin(t, j)
	j.Close()

	if len(out) != 0 {
		t.Fatalf("expected no rows joining against an empty side, got %d", len(out))
	}
}

func TestSortMergeJoinOutputNeverOverfull(t *testing.T) {
	ctx := engine.NewContext(3, t.TempDir())
	leftVals := []int{1, 1, 1, 1, 1, 1, 2}
	rightVals := []int{1, 1, 1, 1, 2}

	left := sortedChild(t, ctx, "left", 32, 3, leftVals)
	right := sortedChild(t, ctx, "right", 32, 3, rightVals)

	j := New(left, right, ctx, 16, 3, []engine.Condition{{Left: "k", Right: "k"}}) // small pageCap to force many batches
	if err := j.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	total := 0
	for {
		b, err := j.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if b == nil {
			break
		}
		if b.Len() > b.Cap() {
			t.Fatalf("batch over-full: %d > %d", b.Len(), b.Cap())
		}
		total += b.Len()
	}
	j.Close()

	want := 6*4 + 1*1
	if total != want {
		t.Fatalf("expected %d total rows, got %d", want, total)
	}
}
