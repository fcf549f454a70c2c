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

// Command joinbench runs a small generated join over the buffer-
// bounded execution engine and reports row counts and timings. It
// exists to exercise the operator tree as a runnable program, not as a
// query tool: there is no SQL parsing, no catalog, no planner.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/relexec/engine"
	"github.com/relexec/engine/blocknestedjoin"
	"github.com/relexec/engine/config"
	"github.com/relexec/engine/extsort"
	"github.com/relexec/engine/leafscan"
	"github.com/relexec/engine/sortmergejoin"
	"github.com/relexec/engine/tuple"
	"github.com/relexec/engine/value"
)

func fatalf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(1)
}

func main() {
	var (
		algo      string
		leftRows  int
		rightRows int
		keyspace  int
		pageSize  int
		numBuff   int
		tempDir   string
		configPath string
		verbose   bool
	)
	flag.StringVar(&algo, "algo", "sortmerge", "join algorithm: sortmerge or blocknested")
	flag.IntVar(&leftRows, "left", 10000, "number of generated left rows")
	flag.IntVar(&rightRows, "right", 10000, "number of generated right rows")
	flag.IntVar(&keyspace, "keyspace", 1000, "range of generated join keys")
	flag.IntVar(&pageSize, "pagesize", 4096, "bytes per page")
	flag.IntVar(&numBuff, "numbuff", 8, "page-buffer budget (B)")
	flag.StringVar(&tempDir, "tempdir", "", "directory for spill files (default: current directory)")
	flag.StringVar(&configPath, "config", "", "optional YAML EngineConfig overriding the flags above")
	flag.BoolVar(&verbose, "v", false, "log operator diagnostics to stderr")
	flag.Parse()

	cfg := config.EngineConfig{PageSize: pageSize, NumBuff: numBuff, TempDir: tempDir}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			fatalf("joinbench: reading config: %s", err)
		}
		cfg, err = config.LoadYAML(data)
		if err != nil {
			fatalf("joinbench: %s", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		fatalf("joinbench: %s", err)
	}

	ctx := engine.NewContext(cfg.NumBuff, cfg.TempDir)
	if verbose {
		ctx.Logf = func(format string, args ...interface{}) { fmt.Fprintf(os.Stderr, "joinbench: "+format+"\n", args...) }
	}

	schema := tuple.NewSchema(tuple.Column{Name: "k", Tag: value.IntTag, Width: 8})
	rng := rand.New(rand.NewSource(1))
	leftChild := leafscan.New(schema, cfg.PageSize, randomRows(rng, leftRows, keyspace))
	rightChild := leafscan.New(schema, cfg.PageSize, randomRows(rng, rightRows, keyspace))
	conds := []engine.Condition{{Left: "k", Right: "k"}}

	var op engine.Operator
	switch algo {
	case "sortmerge":
		sortedLeft := extsort.New(leftChild, ctx, cfg.PageSize, cfg.NumBuff, "left", []int{0}, cfg.CompressSpill)
		sortedRight := extsort.New(rightChild, ctx, cfg.PageSize, cfg.NumBuff, "right", []int{0}, cfg.CompressSpill)
		op = sortmergejoin.New(sortedLeft, sortedRight, ctx, cfg.PageSize, cfg.NumBuff, conds)
	case "blocknested":
		op = blocknestedjoin.New(leftChild, rightChild, ctx, cfg.PageSize, cfg.NumBuff, conds, cfg.CompressSpill)
	default:
		fatalf("joinbench: unknown -algo %q (want sortmerge or blocknested)", algo)
	}

	start := time.Now()
	if err := op.Open(); err != nil {
		if fe, ok := err.(*engine.FatalError); ok {
			fatalf("joinbench: fatal: %s", fe)
		}
		fatalf("joinbench: open: %s", err)
	}

	var rows int
	for {
		b, err := op.Next()
		if err != nil {
			if fe, ok := err.(*engine.FatalError); ok {
				fatalf("joinbench: fatal: %s", fe)
			}
			fatalf("joinbench: next: %s", err)
		}
		if b == nil {
			break
		}
		rows += b.Len()
	}
	elapsed := time.Since(start)
	if err := op.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "joinbench: close: %s\n", err)
	}

	fmt.Printf("algo=%s left=%d right=%d keyspace=%d numBuff=%d pageSize=%d rows=%d elapsed=%s\n",
		algo, leftRows, rightRows, keyspace, cfg.NumBuff, cfg.PageSize, rows, elapsed)
}

func randomRows(rng *rand.Rand, n, keyspace int) []tuple.Tuple {
	rows := make([]tuple.Tuple, n)
	for i := range rows {
		rows[i] = tuple.New(value.Int(int64(rng.Intn(keyspace))))
	}
	return rows
}
