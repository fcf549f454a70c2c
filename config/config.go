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

// Package config holds the process-wide configuration spec section 6
// describes ("set once before open"): pageSize and numBuff, plus the
// engine's own ambient knobs (temp directory, optional spill
// compression, optional logging callback).
package config

import (
	"fmt"

	"sigs.k8s.io/yaml"
)

// EngineConfig is the process-wide configuration for a relexec plan.
// It is declared with json struct tags and decoded with
// sigs.k8s.io/yaml (which round-trips through encoding/json), the
// same configuration-file library the teacher module depends on.
type EngineConfig struct {
	// PageSize is the number of bytes per page. Must be >= the
	// largest tuple size of any schema the plan touches.
	PageSize int `json:"pageSize"`

	// NumBuff is the default page-buffer budget (B) for operators
	// that don't receive an explicit override. Must be >= 3 for
	// BlockNestedJoin and for ExternalSort's merge phase.
	NumBuff int `json:"numBuff"`

	// TempDir is where spill files are created. Empty means the
	// current working directory.
	TempDir string `json:"tempDir,omitempty"`

	// CompressSpill, when true, frames spilled batches through an
	// S2 block compressor before writing them to disk.
	CompressSpill bool `json:"compressSpill,omitempty"`

	// Logf, if non-nil, receives diagnostic log lines. It is never
	// populated by LoadYAML; callers wire it up in code after
	// decoding, following the teacher's GCConfig.Logf pattern.
	Logf func(format string, args ...interface{}) `json:"-"`
}

// Validate checks the structural invariants spec section 6 requires
// of a Configuration before any operator is opened.
func (c EngineConfig) Validate() error {
	if c.PageSize <= 0 {
		return fmt.Errorf("config: pageSize must be positive, got %d", c.PageSize)
	}
	if c.NumBuff < 3 {
		return fmt.Errorf("config: numBuff must be >= 3, got %d", c.NumBuff)
	}
	return nil
}

// LoadYAML decodes an EngineConfig from YAML bytes using
// sigs.k8s.io/yaml, validating the result before returning it.
func LoadYAML(data []byte) (EngineConfig, error) {
	var c EngineConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return EngineConfig{}, fmt.Errorf("config: decoding yaml: %w", err)
	}
	if err := c.Validate(); err != nil {
		return EngineConfig{}, err
	}
	return c, nil
}
