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

package spillcodec

import "os"

// CreateSpill creates (or truncates) the run file at path for
// writing, matching spec section 6's "Spill file format" contract: a
// flat file, readable sequentially until EOF.
func CreateSpill(path string) (*os.File, error) {
	return os.Create(path)
}

// OpenSpill opens an existing run file for sequential reading.
func OpenSpill(path string) (*os.File, error) {
	return os.Open(path)
}

// CloseSpillAfterRead closes f having finished a final read pass over
// it, dropping its pages from the OS cache on platforms that support
// that hint (see fadvise_linux.go / fadvise_other.go) so a completed
// run doesn't keep competing with numBuff's resident-memory budget.
// The hint failing is not itself an error -- only f.Close's result is
// returned, matching spec section 4.3's "close... swallows [best
// effort] errors" posture for everything but the final handle close.
func CloseSpillAfterRead(f *os.File) error {
	dropCache(f)
	return f.Close()
}

// RemoveSpill deletes a run/spill file. Its error is swallowed by
// callers per spec section 4.3/7 -- close is best-effort.
func RemoveSpill(path string) error {
	return os.Remove(path)
}
