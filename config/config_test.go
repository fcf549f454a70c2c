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

package config

import "testing"

func TestLoadYAML(t *testing.T) {
	data := []byte("pageSize: 4096\nnumBuff: 8\ntempDir: /tmp/relexec\ncompressSpill: true\n")
	c, err := LoadYAML(data)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if c.PageSize != 4096 || c.NumBuff != 8 || c.TempDir != "/tmp/relexec" || !c.CompressSpill {
		t.Fatalf("unexpected config: %+v", c)
	}
}

func TestLoadYAMLRejectsSmallNumBuff(t *testing.T) {
	data := []byte("pageSize: 4096\nnumBuff: 2\n")
	if _, err := LoadYAML(data); err == nil {
		t.Fatal("expected error for numBuff < 3")
	}
}

func TestValidateRejectsNonPositivePageSize(t *testing.T) {
	c := EngineConfig{PageSize: 0, NumBuff: 4}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for non-positive pageSize")
	}
}
