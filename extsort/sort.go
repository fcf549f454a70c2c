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

// Package extsort implements ExternalSort: a two-phase external merge
// sort bounded to B=numBuff page buffers, spilling intermediate runs
// to disk (spec section 4.3).
package extsort

import (
	"fmt"
	"os"

	"golang.org/x/exp/slices"

	"github.com/relexec/engine"
	"github.com/relexec/engine/spillcodec"
	"github.com/relexec/engine/tuple"
)

// Sort is the ExternalSort operator.
type Sort struct {
	child     engine.Operator
	ctx       *engine.Context
	direction string
	numBuff   int
	pageSize  int
	cmp       tuple.Comparator
	compress  bool

	schema  tuple.Schema
	pageCap int

	finalPath string
	finalFile *os.File
	reader    *spillcodec.Reader
	opened    bool
	drained   bool
	closed    bool
}

// New constructs an ExternalSort operator. direction is the opaque
// tag ("left"/"right") spec section 4.3 uses to keep temp files of
// paired sorts from colliding; keyIdx is the key-column index vector
// the stable sort and the resulting order are keyed on.
func New(child engine.Operator, ctx *engine.Context, pageSize, numBuff int, direction string, keyIdx []int, compress bool) *Sort {
	return &Sort{
		child:     child,
		ctx:       ctx,
		direction: direction,
		numBuff:   numBuff,
		pageSize:  pageSize,
		cmp:       tuple.NewComparator(keyIdx...),
		compress:  compress,
	}
}

// GetSchema implements engine.Operator.
func (s *Sort) GetSchema() tuple.Schema { return s.schema }

// GetBlock implements engine.Operator via the default k-Next
// concatenation (ExternalSort is never used as BlockNestedJoin's left
// child in this module, but the method must exist per the ABI).
func (s *Sort) GetBlock(k int) (*tuple.Batch, error) { return engine.DefaultGetBlock(s, k) }

// Open runs phase 1 (run generation) and phase 2 (merge passes), then
// leaves an input stream positioned at the start of the single
// surviving run for phase 3 (streaming). Any I/O error during run
// generation or merging fails Open, per spec section 4.3's failure
// semantics.
func (s *Sort) Open() error {
	if s.numBuff < 2 {
		return &engine.ConfigError{Msg: fmt.Sprintf("extsort: numBuff must be >= 2, got %d", s.numBuff)}
	}
	if err := s.child.Open(); err != nil {
		return &engine.ConfigError{Msg: "extsort: child failed to open", Err: err}
	}

	s.schema = s.child.GetSchema()
	cap, err := tuple.PageCapacity(s.pageSize, s.schema.TupleSize())
	if err != nil {
		s.child.Close()
		return &engine.ConfigError{Msg: "extsort: bad page geometry", Err: err}
	}
	s.pageCap = cap

	runs, err := s.generateRuns()
	closeErr := s.child.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		s.ctx.Logln("extsort(%s): child close: %s", s.direction, closeErr)
	}

	final, err := s.mergeUntilOne(runs)
	if err != nil {
		return err
	}

	f, err := spillcodec.OpenSpill(final)
	if err != nil {
		return &engine.ConfigError{Msg: "extsort: opening final run", Err: err}
	}
	s.finalPath = final
	s.finalFile = f
	s.reader = spillcodec.NewReader(f, s.schema, s.pageCap)
	s.opened = true
	return nil
}

// generateRuns implements spec section 4.3 Phase 1: pull batches into
// a Block of up to B batches, flatten, stably sort on the key
// comparator, re-pack into pageCapacity-sized batches, and spill as a
// new run. It always produces at least one run file (possibly empty),
// so the invariant "after open succeeds, exactly one run file exists"
// (spec section 3) holds uniformly, including the zero-tuple boundary
// scenario.
func (s *Sort) generateRuns() ([]string, error) {
	var runs []string
	var block []*tuple.Batch

	flush := func() error {
		path, err := s.flushRun(block, len(runs))
		if err != nil {
			return err
		}
		runs = append(runs, path)
		block = nil
		return nil
	}

	for {
		b, err := s.child.Next()
		if err != nil {
			return nil, &engine.ConfigError{Msg: "extsort: reading child", Err: err}
		}
		if b == nil {
			break
		}
		block = append(block, b)
		if len(block) >= s.numBuff {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if len(block) > 0 || len(runs) == 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// flushRun flattens block's tuples, stably sorts them on s.cmp, and
// writes the result as a new run file, returning its path.
func (s *Sort) flushRun(block []*tuple.Batch, runNo int) (string, error) {
	var all []tuple.Tuple
	for _, b := range block {
		all = append(all, b.Tuples()...)
	}

	var sortErr error
	slices.SortStableFunc(all, func(a, b tuple.Tuple) bool {
		c, err := s.cmp.Compare(a, b)
		if err != nil {
			sortErr = &engine.FatalError{Msg: "extsort: comparing tuples during run generation", Err: err}
			return false
		}
		return c < 0
	})
	if sortErr != nil {
		return "", sortErr
	}

	path := s.ctx.SortRunPath(s.direction, runNo, -1)
	f, err := spillcodec.CreateSpill(path)
	if err != nil {
		return "", fmt.Errorf("extsort: creating run %s: %w", path, err)
	}
	defer f.Close()

	w := spillcodec.NewWriter(f, s.schema, s.compress)
	for i := 0; i < len(all); i += s.pageCap {
		end := i + s.pageCap
		if end > len(all) {
			end = len(all)
		}
		batch := tuple.NewBatch(s.pageCap)
		for _, t := range all[i:end] {
			batch.Append(t)
		}
		if err := w.WriteBatch(batch); err != nil {
			return "", fmt.Errorf("extsort: writing run %s: %w", path, err)
		}
	}
	return path, nil
}

// Next implements phase 3 (streaming): return successive batches from
// the single surviving run; a read failure or clean EOF both signal
// end-of-stream, per spec section 4.3's failure semantics. A corrupt
// frame is logged (SPEC_FULL.md's resolution of the "deserialization
// errors silently truncate" open question) before being folded into
// the end-of-stream signal.
func (s *Sort) Next() (*tuple.Batch, error) {
	if !s.opened || s.drained {
		return nil, nil
	}
	b, err := s.reader.ReadBatch()
	if err != nil {
		s.ctx.Logln("extsort(%s): next: %s", s.direction, err)
		s.drained = true
		return nil, nil
	}
	if b == nil {
		s.drained = true
		return nil, nil
	}
	return b, nil
}

// Close deletes the final run file and swallows delete errors, per
// spec section 4.3.
func (s *Sort) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.finalFile != nil {
		if err := spillcodec.CloseSpillAfterRead(s.finalFile); err != nil {
			s.ctx.Logln("extsort(%s): close: %s", s.direction, err)
		}
	}
	if s.finalPath != "" {
		if err := spillcodec.RemoveSpill(s.finalPath); err != nil {
			s.ctx.Logln("extsort(%s): close: removing %s: %s", s.direction, s.finalPath, err)
		}
	}
	return nil
}
