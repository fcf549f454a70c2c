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

// Package blocknestedjoin implements BlockNestedJoin: the right child
// is materialized once to a spill file, then joined against the left
// child streamed in (B-2)-page blocks (spec section 4.5). Unlike
// SortMergeJoin, neither input needs to be sorted.
package blocknestedjoin

import (
	"fmt"
	"io"
	"os"

	"github.com/relexec/engine"
	"github.com/relexec/engine/spillcodec"
	"github.com/relexec/engine/tuple"
	"github.com/relexec/engine/value"
)

// Join is the BlockNestedJoin operator.
type Join struct {
	left, right engine.Operator
	ctx         *engine.Context
	pageSize    int
	numBuff     int
	conds       []engine.Condition
	compress    bool

	leftIdx, rightIdx []int
	rightSchema       tuple.Schema
	schema            tuple.Schema
	outCap            int
	rightCap          int
	blockFanin        int // B-2, the left.GetBlock fan-in

	spillPath string
	spillFile *os.File
	reader    *spillcodec.Reader

	// leftBlock/leftPos is the current (B-2)-page left block and the
	// index, within it, of the left tuple currently being matched
	// against a fresh scan of the whole right spill.
	leftBlock *tuple.Batch
	leftPos   int

	// rightBatch/rightPos is the intra-batch cursor into the right
	// spill's current scan pass, for the current left tuple.
	rightBatch *tuple.Batch
	rightPos   int

	opened bool
	closed bool
}

// New constructs a BlockNestedJoin over left and right, joining on the
// equality conditions in conds. compress controls whether the
// materialized right spill file is s2-compressed.
func New(left, right engine.Operator, ctx *engine.Context, pageSize, numBuff int, conds []engine.Condition, compress bool) *Join {
	return &Join{left: left, right: right, ctx: ctx, pageSize: pageSize, numBuff: numBuff, conds: conds, compress: compress}
}

// GetSchema implements engine.Operator.
func (j *Join) GetSchema() tuple.Schema { return j.schema }

// GetBlock implements engine.Operator via the default k-Next
// concatenation; BlockNestedJoin is never its own left child.
func (j *Join) GetBlock(k int) (*tuple.Batch, error) { return engine.DefaultGetBlock(j, k) }

// Open resolves key-index vectors, opens both children, and drains the
// right child into a spill file before closing it -- spec section
// 4.5's Open steps 1-4. GetSchema is only reliable after Open across
// this module's operators (ExternalSort and SortMergeJoin compute
// theirs during Open too), so both children are opened before key
// resolution rather than strictly following the spec's numbered order.
func (j *Join) Open() error {
	if j.numBuff < 3 {
		return &engine.ConfigError{Msg: fmt.Sprintf("blocknestedjoin: numBuff must be >= 3, got %d", j.numBuff)}
	}
	if err := j.left.Open(); err != nil {
		return &engine.ConfigError{Msg: "blocknestedjoin: left child failed to open", Err: err}
	}
	if err := j.right.Open(); err != nil {
		j.left.Close()
		return &engine.ConfigError{Msg: "blocknestedjoin: right child failed to open", Err: err}
	}

	leftSchema, rightSchema := j.left.GetSchema(), j.right.GetSchema()
	leftIdx, rightIdx, err := engine.ResolveKeys(leftSchema, rightSchema, j.conds)
	if err != nil {
		j.left.Close()
		j.right.Close()
		return err
	}
	if err := tuple.ValidateKeys(leftSchema, rightSchema, leftIdx, rightIdx); err != nil {
		j.left.Close()
		j.right.Close()
		return &engine.ConfigError{Msg: "blocknestedjoin: key validation", Err: err}
	}
	j.leftIdx, j.rightIdx = leftIdx, rightIdx
	j.rightSchema = rightSchema
	j.schema = leftSchema.Concat(rightSchema)

	outCap, err := tuple.PageCapacity(j.pageSize, j.schema.TupleSize())
	if err != nil {
		j.left.Close()
		j.right.Close()
		return &engine.ConfigError{Msg: "blocknestedjoin: bad output page geometry", Err: err}
	}
	j.outCap = outCap

	rightCap, err := tuple.PageCapacity(j.pageSize, rightSchema.TupleSize())
	if err != nil {
		j.left.Close()
		j.right.Close()
		return &engine.ConfigError{Msg: "blocknestedjoin: bad right page geometry", Err: err}
	}
	j.rightCap = rightCap
	j.blockFanin = j.numBuff - 2

	path := j.ctx.BNJPath()
	f, err := spillcodec.CreateSpill(path)
	if err != nil {
		j.left.Close()
		j.right.Close()
		return &engine.ConfigError{Msg: "blocknestedjoin: creating spill file", Err: err}
	}
	w := spillcodec.NewWriter(f, rightSchema, j.compress)
	for {
		b, err := j.right.Next()
		if err != nil {
			f.Close()
			spillcodec.RemoveSpill(path)
			j.left.Close()
			j.right.Close()
			return &engine.ConfigError{Msg: "blocknestedjoin: draining right child", Err: err}
		}
		if b == nil {
			break
		}
		if err := w.WriteBatch(b); err != nil {
			f.Close()
			spillcodec.RemoveSpill(path)
			j.left.Close()
			j.right.Close()
			return &engine.ConfigError{Msg: "blocknestedjoin: writing spill file", Err: err}
		}
	}
	if err := j.right.Close(); err != nil {
		j.ctx.Logln("blocknestedjoin: right child close: %s", err)
	}

	j.spillPath = path
	j.spillFile = f
	j.opened = true
	return nil
}

// restartRightScan rewinds the spill file to its start and installs a
// fresh Reader, so the next left tuple can be matched against the
// whole right side again.
func (j *Join) restartRightScan() error {
	if _, err := j.spillFile.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("blocknestedjoin: seeking spill file: %w", err)
	}
	j.reader = spillcodec.NewReader(j.spillFile, j.rightSchema, j.rightCap)
	j.rightBatch = nil
	j.rightPos = 0
	return nil
}

// ensureLeftTuple makes sure leftBlock/leftPos addresses a valid left
// tuple, pulling a new (B-2)-page block via left.GetBlock and
// restarting the right scan when the current block is exhausted.
// Reports false only at true end-of-stream (the left child is done).
func (j *Join) ensureLeftTuple() (bool, error) {
	if j.leftBlock != nil && j.leftPos < j.leftBlock.Len() {
		return true, nil
	}
	blk, err := j.left.GetBlock(j.blockFanin)
	if err != nil {
		return false, fmt.Errorf("blocknestedjoin: reading left block: %w", err)
	}
	if blk == nil {
		j.leftBlock = nil
		return false, nil
	}
	j.leftBlock = blk
	j.leftPos = 0
	if err := j.restartRightScan(); err != nil {
		return false, err
	}
	return true, nil
}

// advanceLeftTuple moves to the next left tuple in the current block
// (restarting the right scan for it), or clears leftBlock so the next
// ensureLeftTuple call pulls a new block.
func (j *Join) advanceLeftTuple() error {
	j.leftPos++
	if j.leftBlock == nil || j.leftPos >= j.leftBlock.Len() {
		j.leftBlock = nil
		return nil
	}
	return j.restartRightScan()
}

// ensureRightTuple makes sure rightBatch/rightPos addresses a valid
// right tuple for the current scan pass, pulling the next spilled
// batch as needed. Reports false when the current left tuple's right
// scan is exhausted (not overall end-of-stream).
func (j *Join) ensureRightTuple() (bool, error) {
	if j.rightBatch != nil && j.rightPos < j.rightBatch.Len() {
		return true, nil
	}
	b, err := j.reader.ReadBatch()
	if err != nil {
		return false, fmt.Errorf("blocknestedjoin: reading right spill: %w", err)
	}
	if b == nil {
		return false, nil
	}
	j.rightBatch = b
	j.rightPos = 0
	return true, nil
}

func (j *Join) keysMatch(l, r tuple.Tuple) bool {
	for i := range j.leftIdx {
		if !value.Equal(l.At(j.leftIdx[i]), r.At(j.rightIdx[i])) {
			return false
		}
	}
	return true
}

// Next fills one output batch, implementing spec section 4.5: for
// each left tuple of the current block, rescan the whole materialized
// right side and emit every matching pair. A full output batch is
// returned before the next pair is consumed, so leftPos/rightPos (and
// the right scan's reader position) retain exactly enough state for
// the next Next call to resume -- covering all four boundary cases
// (both cursors mid-batch, only one exhausted, or both) without
// skipping or repeating a pair.
func (j *Join) Next() (*tuple.Batch, error) {
	if !j.opened || j.closed {
		return nil, nil
	}
	out := tuple.NewBatch(j.outCap)

	for {
		ok, err := j.ensureLeftTuple()
		if err != nil {
			j.ctx.Logln("blocknestedjoin: %s", err)
			return j.finish(out)
		}
		if !ok {
			return j.finish(out)
		}

		ok, err = j.ensureRightTuple()
		if err != nil {
			j.ctx.Logln("blocknestedjoin: %s", err)
			return j.finish(out)
		}
		if !ok {
			if err := j.advanceLeftTuple(); err != nil {
				j.ctx.Logln("blocknestedjoin: %s", err)
				return j.finish(out)
			}
			continue
		}

		l := j.leftBlock.At(j.leftPos)
		r := j.rightBatch.At(j.rightPos)
		if j.keysMatch(l, r) {
			if out.Full() {
				return out, nil
			}
			out.Append(tuple.Concat(l, r))
		}
		j.rightPos++
	}
}

func (j *Join) finish(out *tuple.Batch) (*tuple.Batch, error) {
	if out.Len() == 0 {
		return nil, nil
	}
	return out, nil
}

// Close deletes the spill file, per spec section 4.5.
func (j *Join) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	if j.spillFile != nil {
		if err := spillcodec.CloseSpillAfterRead(j.spillFile); err != nil {
			j.ctx.Logln("blocknestedjoin: close: %s", err)
		}
	}
	if j.spillPath != "" {
		if err := spillcodec.RemoveSpill(j.spillPath); err != nil {
			j.ctx.Logln("blocknestedjoin: close: removing %s: %s", j.spillPath, err)
		}
	}
	if err := j.left.Close(); err != nil {
		j.ctx.Logln("blocknestedjoin: closing left: %s", err)
	}
	return nil
}
