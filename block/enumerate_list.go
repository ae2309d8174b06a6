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

// EnumerateList expands one input-row register holding an array/range
// value into N output rows, one per element, re-copying the input row's
// inherited registers onto every output row (spec.md §4.3).
type EnumerateList struct {
	Base

	InReg  int
	OutReg int

	cur     *value.Block
	curRow  int
	elems   []value.Value
	elemPos int
}

// NewEnumerateList constructs an EnumerateList reading register inReg of
// dep's rows and writing each element into outReg.
func NewEnumerateList(eng *engine.Engine, dep Operator, inReg, outReg int) *EnumerateList {
	return &EnumerateList{
		Base:   Base{Eng: eng, Dependencies: []Operator{dep}},
		InReg:  inReg,
		OutReg: outReg,
	}
}

func (e *EnumerateList) InitializeCursor(ctx context.Context, input *value.Block, pos int) error {
	if err := e.Base.InitializeCursor(ctx, input, pos); err != nil {
		return err
	}
	e.cur = nil
	e.curRow = 0
	e.elems = nil
	e.elemPos = 0
	return nil
}

// advanceRow moves onto the next inherited row and decodes its InReg value
// into e.elems, pulling more upstream blocks as needed. It returns false
// once upstream is exhausted.
func (e *EnumerateList) advanceRow(ctx context.Context) (bool, error) {
	for {
		if e.cur != nil && e.curRow < e.cur.NumRows() {
			v := e.cur.Get(e.curRow, e.InReg)
			if !v.IsArrayish() {
				return false, engine.NewError(engine.DocumentTypeInvalid, "EnumerateList: register %d is not arrayish", e.InReg)
			}
			e.elems = v.Elements()
			e.elemPos = 0
			return true, nil
		}
		blk, err := e.Dependency().GetSome(ctx, 1, e.Eng.Config.DefaultBatchSize)
		if err != nil {
			return false, err
		}
		if blk == nil {
			return false, nil
		}
		e.cur = blk
		e.curRow = 0
	}
}

type elRow struct {
	srcBlock *value.Block
	srcRow   int
	elem     value.Value
}

func (e *EnumerateList) emit(ctx context.Context, atMost int, skipping bool) (*value.Block, int, error) {
	var rows []elRow
	n := 0
	for n < atMost {
		if err := e.Eng.CheckKilled(); err != nil {
			return nil, 0, err
		}
		if e.elems == nil || e.elemPos >= len(e.elems) {
			e.curRow++
			e.elems = nil
			ok, err := e.advanceRow(ctx)
			if err != nil {
				return nil, 0, err
			}
			if !ok {
				break
			}
			continue
		}
		if !skipping {
			rows = append(rows, elRow{srcBlock: e.cur, srcRow: e.curRow, elem: e.elems[e.elemPos]})
		}
		e.elemPos++
		n++
	}
	if n == 0 {
		return nil, 0, nil
	}
	if skipping {
		return nil, n, nil
	}
	nregs := e.cur.NumRegs()
	if e.OutReg >= nregs {
		nregs = e.OutReg + 1
	}
	out := value.NewBlock(len(rows), nregs)
	for i, r := range rows {
		for reg := 0; reg < r.srcBlock.NumRegs(); reg++ {
			if reg == e.InReg {
				continue
			}
			v := r.srcBlock.Get(r.srcRow, reg)
			if !v.IsEmpty() {
				out.Set(i, reg, v.Clone())
			}
			out.SetCollection(reg, r.srcBlock.Collection(reg))
		}
		out.Set(i, e.OutReg, r.elem)
	}
	out.ClearRegisters(e.ClearRegs)
	return out, len(rows), nil
}

func (e *EnumerateList) GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error) {
	blk, _, err := e.emit(ctx, atMost, false)
	return blk, err
}

func (e *EnumerateList) SkipSome(ctx context.Context, atLeast, atMost int) (int, error) {
	_, n, err := e.emit(ctx, atMost, true)
	return n, err
}

func (e *EnumerateList) Skip(ctx context.Context, n int) (bool, error) { return e.Base.Skip(ctx, e, n) }
