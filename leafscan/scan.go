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

// Package leafscan supplies one minimal, concrete leaf Operator so the
// join and sort operators can be exercised end-to-end. Spec section 1
// treats the leaf scan that produces pages from base tables as an
// external collaborator, out of scope; Slice is intentionally not a
// general scan implementation -- no base-table storage, no predicate
// pushdown, no catalog integration -- it exists only to feed tuples
// into the Operator ABI for tests and the demo CLI.
package leafscan

import (
	"fmt"

	"github.com/relexec/engine"
	"github.com/relexec/engine/tuple"
)

// Slice is an Operator backed by an in-memory slice of tuples, paged
// out at a fixed pageCapacity derived from its schema and the caller's
// pageSize.
type Slice struct {
	schema   tuple.Schema
	pageSize int
	rows     []tuple.Tuple

	pageCap int
	pos     int
	opened  bool
}

// New constructs a Slice leaf over rows under schema, to be paged out
// in batches sized for pageSize.
func New(schema tuple.Schema, pageSize int, rows []tuple.Tuple) *Slice {
	return &Slice{schema: schema, pageSize: pageSize, rows: rows}
}

// GetSchema implements engine.Operator.
func (s *Slice) GetSchema() tuple.Schema { return s.schema }

// Open implements engine.Operator.
func (s *Slice) Open() error {
	cap, err := tuple.PageCapacity(s.pageSize, s.schema.TupleSize())
	if err != nil {
		return &engine.ConfigError{Msg: "leafscan: bad page geometry", Err: err}
	}
	s.pageCap = cap
	s.opened = true
	return nil
}

// Next implements engine.Operator.
func (s *Slice) Next() (*tuple.Batch, error) {
	if !s.opened {
		return nil, fmt.Errorf("leafscan: next called before open")
	}
	if s.pos >= len(s.rows) {
		return nil, nil
	}
	end := s.pos + s.pageCap
	if end > len(s.rows) {
		end = len(s.rows)
	}
	b := tuple.NewBatch(s.pageCap)
	for _, t := range s.rows[s.pos:end] {
		b.Append(t)
	}
	s.pos = end
	return b, nil
}

// GetBlock implements engine.Operator via the default k-Next
// concatenation -- Slice is a plausible left child of BlockNestedJoin.
func (s *Slice) GetBlock(k int) (*tuple.Batch, error) { return engine.DefaultGetBlock(s, k) }

// Close implements engine.Operator; Slice owns no spill files.
func (s *Slice) Close() error { return nil }
