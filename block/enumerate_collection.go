// Copyright (C) 2022 Sneller, Inc.
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

package block

import (
	"context"

	"github.com/arangodb/aqlengine/engine"
	"github.com/arangodb/aqlengine/value"
)

// EnumerateCollection performs a collection scan, sequential or random,
// re-running the scan once per upstream row and emitting one output row
// per scanned document, carrying the upstream row's other registers along
// (spec.md §4.3: this is what makes `FOR x IN a FOR y IN b` a nested loop
// rather than a single flat scan over the upstream's first row only).
type EnumerateCollection struct {
	Base

	Collection string
	Random     bool
	OutReg     int

	curInputBlock *value.Block
	curInputRow   int
	upDone        bool

	scanner    engine.Scanner
	localBatch []engine.Document
	lbPos      int
}

// NewEnumerateCollection constructs an EnumerateCollection over dep (the
// outer input, usually a Singleton, but any row-producing operator works:
// the collection is rescanned once per dep row).
func NewEnumerateCollection(eng *engine.Engine, dep Operator, collection string, random bool, outReg int) *EnumerateCollection {
	return &EnumerateCollection{
		Base:       Base{Eng: eng, Dependencies: []Operator{dep}},
		Collection: collection,
		Random:     random,
		OutReg:     outReg,
	}
}

func (e *EnumerateCollection) InitializeCursor(ctx context.Context, input *value.Block, pos int) error {
	if err := e.Base.InitializeCursor(ctx, input, pos); err != nil {
		return err
	}
	if e.scanner != nil {
		e.scanner.Close()
		e.scanner = nil
	}
	e.curInputBlock = nil
	e.curInputRow = 0
	e.upDone = false
	e.localBatch = nil
	e.lbPos = 0
	return nil
}

func (e *EnumerateCollection) Shutdown(code engine.Code) error {
	if e.scanner != nil {
		e.scanner.Close()
		e.scanner = nil
	}
	return e.Base.Shutdown(code)
}

// advanceInputRow pulls upstream blocks until a row is available to drive
// the next per-row collection scan. Returns false once upstream is
// exhausted.
func (e *EnumerateCollection) advanceInputRow(ctx context.Context) (bool, error) {
	for {
		if e.curInputBlock != nil && e.curInputRow < e.curInputBlock.NumRows() {
			return true, nil
		}
		if e.upDone {
			return false, nil
		}
		blk, err := e.Dependency().GetSome(ctx, 1, e.Eng.Config.DefaultBatchSize)
		if err != nil {
			return false, err
		}
		if blk == nil {
			e.upDone = true
			return false, nil
		}
		e.curInputBlock = blk
		e.curInputRow = 0
	}
}

type ecRow struct {
	srcBlock *value.Block
	srcRow   int
	doc      engine.Document
}

// nextDoc returns the next scanned document along with the upstream row it
// belongs to, opening a fresh scanner for each new upstream row and closing
// it once that row's scan is exhausted.
func (e *EnumerateCollection) nextDoc(ctx context.Context) (ecRow, bool, error) {
	for {
		if e.lbPos < len(e.localBatch) {
			d := e.localBatch[e.lbPos]
			e.lbPos++
			return ecRow{srcBlock: e.curInputBlock, srcRow: e.curInputRow, doc: d}, true, nil
		}
		if e.scanner == nil {
			ok, err := e.advanceInputRow(ctx)
			if err != nil {
				return ecRow{}, false, err
			}
			if !ok {
				return ecRow{}, false, nil
			}
			sc, err := e.Eng.Transaction.Scanner(ctx, e.Collection, e.Random)
			if err != nil {
				return ecRow{}, false, err
			}
			e.scanner = sc
		}
		hint := e.Eng.Config.DefaultBatchSize
		docs, err := e.scanner.Scan(ctx, nil, engine.ScanHint{Min: hint})
		if err != nil {
			return ecRow{}, false, err
		}
		if len(docs) == 0 {
			e.scanner.Close()
			e.scanner = nil
			e.curInputRow++
			continue
		}
		e.localBatch = docs
		e.lbPos = 0
		e.Eng.Stats.ScannedFull += int64(len(docs))
	}
}

func (e *EnumerateCollection) emit(ctx context.Context, atMost int, skipping bool) (*value.Block, int, error) {
	var rows []ecRow
	n := 0
	for n < atMost {
		if err := e.Eng.CheckKilled(); err != nil {
			return nil, 0, err
		}
		r, ok, err := e.nextDoc(ctx)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			break
		}
		if !skipping {
			rows = append(rows, r)
		}
		n++
	}
	if n == 0 {
		return nil, 0, nil
	}
	if skipping {
		return nil, n, nil
	}
	nregs := e.OutReg + 1
	for _, r := range rows {
		if r.srcBlock != nil && r.srcBlock.NumRegs() > nregs {
			nregs = r.srcBlock.NumRegs()
		}
	}
	out := value.NewBlock(len(rows), nregs)
	for i, r := range rows {
		if r.srcBlock != nil {
			for reg := 0; reg < r.srcBlock.NumRegs(); reg++ {
				if reg == e.OutReg {
					continue
				}
				v := r.srcBlock.Get(r.srcRow, reg)
				if !v.IsEmpty() {
					out.Set(i, reg, v.Clone())
				}
				out.SetCollection(reg, r.srcBlock.Collection(reg))
			}
		}
		out.Set(i, e.OutReg, value.NewShaped([]byte(r.doc.Key), r.doc.Collection))
		out.SetCollection(e.OutReg, r.doc.Collection)
	}
	return out, len(rows), nil
}

func (e *EnumerateCollection) GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error) {
	blk, _, err := e.emit(ctx, atMost, false)
	if err != nil || blk == nil {
		return nil, err
	}
	blk.ClearRegisters(e.ClearRegs)
	return blk, nil
}

func (e *EnumerateCollection) SkipSome(ctx context.Context, atLeast, atMost int) (int, error) {
	_, n, err := e.emit(ctx, atMost, true)
	return n, err
}

func (e *EnumerateCollection) Skip(ctx context.Context, n int) (bool, error) { return e.Base.Skip(ctx, e, n) }
