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

package engine

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
)

// Context is the per-plan execution context threaded into every
// operator at construction time. It owns the numBuff budget, the
// temp-file namespace, and the monotonic file-number generator that
// spec section 9's redesign note asks for ("the filenum counter
// becomes a monotonic generator owned by the engine context, passed
// in at operator construction" -- not a global/static counter).
type Context struct {
	// NumBuff is the default page-buffer budget (B) handed to
	// operators that don't receive an explicit override.
	NumBuff int

	// TempDir is the directory spill files are created in. Empty
	// means the current working directory, matching spec section 6's
	// "Spill file format... created in the current working
	// directory".
	TempDir string

	// Logf, if non-nil, is a callback used for diagnostic logging --
	// e.g. SortMergeJoin reporting an oversized duplicate group. It
	// follows the same optional-callback shape as the teacher's
	// GCConfig.Logf field; relexec never pulls in a logging
	// framework for this.
	Logf func(format string, args ...interface{})

	// session is a per-Context identifier minted once, so spill file
	// names stay unique across concurrently embedded plans sharing
	// TempDir (spec section 5's "file names must be unique across
	// concurrent plans if the engine is ever embedded in a
	// multi-query host").
	session string

	bnjCounter int64
}

// NewContext constructs a Context with a fresh session id.
func NewContext(numBuff int, tempDir string) *Context {
	return &Context{
		NumBuff: numBuff,
		TempDir: tempDir,
		session: uuid.New().String(),
	}
}

func (c *Context) logf(format string, args ...interface{}) {
	if false {
		_ = fmt.Sprintf(format, args...) // let go vet check the format string
	}
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

// Logln is the exported form used by operators outside this package;
// it is a no-op when Logf is nil.
func (c *Context) Logln(format string, args ...interface{}) { c.logf(format, args...) }

// SortRunPath names a run file produced by ExternalSort's run
// generation or merge phase. direction is the opaque tag ("left" /
// "right") that keeps temp files of paired sorts from colliding; run
// is the run number; merge, when >= 0, is appended as the
// "[-{merge}]" suffix spec section 6 allows for runs produced by a
// later merge pass.
func (c *Context) SortRunPath(direction string, run int, merge int) string {
	name := fmt.Sprintf("%s-%s-SMTemp-%d", c.session, direction, run)
	if merge >= 0 {
		name = fmt.Sprintf("%s-%d", name, merge)
	}
	return filepath.Join(c.TempDir, name)
}

// BNJPath names the N-th spill file BlockNestedJoin uses to
// materialize its right child, using the Context's own monotonic
// counter (never a package-level static).
func (c *Context) BNJPath() string {
	n := atomic.AddInt64(&c.bnjCounter, 1) - 1
	return filepath.Join(c.TempDir, fmt.Sprintf("%s-BNJtemp-%d", c.session, n))
}
