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
	"fmt"
	"os"

	"github.com/relexec/engine"
	"github.com/relexec/engine/heap"
	"github.com/relexec/engine/spillcodec"
	"github.com/relexec/engine/tuple"
)

// mergeUntilOne repeatedly performs merge passes (spec section 4.3
// Phase 2) until a single run file remains, returning its path.
//
// Each pass partitions the current run list into groups of at most
// B-1 consecutive runs (one output buffer plus B-1 input buffers
// exactly fills B) and merges each group into one new run, deleting
// the inputs. The group size is never allowed to drop below 2: for
// B=2, B-1 would otherwise be 1, which can never reduce the run
// count and would merge forever. This is the "2-run edge case" design
// note in spec section 4.3 -- the pass still strictly decreases the
// run count, at the cost of one extra resident input page beyond the
// nominal B-page budget for that terminal merge.
func (s *Sort) mergeUntilOne(runs []string) (string, error) {
	if len(runs) == 0 {
		return "", &engine.ConfigError{Msg: "extsort: no runs produced"}
	}

	pass := 0
	for len(runs) > 1 {
		groupSize := s.numBuff - 1
		if groupSize < 2 {
			groupSize = 2
		}

		var next []string
		for i := 0; i < len(runs); i += groupSize {
			end := i + groupSize
			if end > len(runs) {
				end = len(runs)
			}
			group := runs[i:end]
			if len(group) == 1 {
				next = append(next, group[0])
				continue
			}
			merged, err := s.mergeGroup(group, len(next), pass)
			if err != nil {
				return "", err
			}
			next = append(next, merged)
		}
		runs = next
		pass++
	}
	return runs[0], nil
}

type mergeSource struct {
	reader *spillcodec.Reader
	file   *os.File
	batch  *tuple.Batch
	pos    int
}

// mergeGroup performs a single k-way merge of the run files in paths
// into one new run, using a min-heap keyed by s.cmp (the reference
// choice spec section 4.3 names). Ties are broken arbitrarily -- the
// join layer handles duplicate groups explicitly, per spec.
func (s *Sort) mergeGroup(paths []string, outIdx, pass int) (string, error) {
	sources := make([]*mergeSource, len(paths))
	for i, p := range paths {
		f, err := spillcodec.OpenSpill(p)
		if err != nil {
			closeSources(sources)
			return "", &engine.ConfigError{Msg: fmt.Sprintf("extsort: opening run %s for merge", p), Err: err}
		}
		sources[i] = &mergeSource{reader: spillcodec.NewReader(f, s.schema, s.pageCap), file: f}
	}
	defer closeSources(sources)

	outPath := s.ctx.SortRunPath(s.direction, outIdx, pass)
	out, err := spillcodec.CreateSpill(outPath)
	if err != nil {
		return "", &engine.ConfigError{Msg: fmt.Sprintf("extsort: creating merged run %s", outPath), Err: err}
	}
	defer out.Close()
	w := spillcodec.NewWriter(out, s.schema, s.compress)

	type item struct {
		t   tuple.Tuple
		src int
	}
	less := func(a, b item) bool {
		c, cerr := s.cmp.Compare(a.t, b.t)
		if cerr != nil {
			// fatal tag mismatch discovered mid-merge; treated as a
			// config/setup failure since it can only happen if the
			// planner mis-aligned schemas (spec section 9).
			panic(&engine.FatalError{Msg: "extsort: comparing tuples during merge", Err: cerr})
		}
		return c <= 0
	}

	var h []item
	for i, src := range sources {
		t, ok, err := s.advance(src)
		if err != nil {
			return "", err
		}
		if ok {
			heap.PushSlice(&h, item{t, i}, less)
		}
	}

	outBatch := tuple.NewBatch(s.pageCap)
	var mergeErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				if fe, ok := r.(*engine.FatalError); ok {
					mergeErr = fe
					return
				}
				panic(r)
			}
		}()
		for len(h) > 0 {
			top := heap.PopSlice(&h, less)
			if !outBatch.Append(top.t) {
				if err := w.WriteBatch(outBatch); err != nil {
					mergeErr = fmt.Errorf("extsort: writing merged run %s: %w", outPath, err)
					return
				}
				outBatch = tuple.NewBatch(s.pageCap)
				outBatch.Append(top.t)
			}
			t, ok, err := s.advance(sources[top.src])
			if err != nil {
				mergeErr = err
				return
			}
			if ok {
				heap.PushSlice(&h, item{t, top.src}, less)
			}
		}
	}()
	if mergeErr != nil {
		return "", mergeErr
	}
	if outBatch.Len() > 0 {
		if err := w.WriteBatch(outBatch); err != nil {
			return "", fmt.Errorf("extsort: writing merged run %s: %w", outPath, err)
		}
	}

	for _, p := range paths {
		if err := spillcodec.RemoveSpill(p); err != nil {
			s.ctx.Logln("extsort(%s): merge: removing input run %s: %s", s.direction, p, err)
		}
	}
	return outPath, nil
}

// advance returns the next tuple from src, pulling a new batch from
// its reader when the current one is exhausted. A merge-time I/O or
// corruption error is a configuration failure (spec section 4.3:
// "Any I/O error during run generation or merging fails open"), so it
// is propagated rather than folded into end-of-stream.
func (s *Sort) advance(src *mergeSource) (tuple.Tuple, bool, error) {
	for {
		if src.batch != nil && src.pos < src.batch.Len() {
			t := src.batch.At(src.pos)
			src.pos++
			return t, true, nil
		}
		b, err := src.reader.ReadBatch()
		if err != nil {
			return tuple.Tuple{}, false, &engine.ConfigError{Msg: "extsort: reading run during merge", Err: err}
		}
		if b == nil {
			return tuple.Tuple{}, false, nil
		}
		src.batch = b
		src.pos = 0
	}
}

func closeSources(sources []*mergeSource) {
	for _, s := range sources {
		if s != nil && s.file != nil {
			spillcodec.CloseSpillAfterRead(s.file)
		}
	}
}
