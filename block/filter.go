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

// Filter is a predicate on one boolean register; rows that survive are
// forwarded downstream, and the filtered count is tracked in
// engine.Stats.Filtered (spec.md §4.4). It is implemented as a custom
// get_or_skip_some because it changes row count.
type Filter struct {
	Base

	CondReg int
}

// NewFilter constructs a Filter testing CondReg of every upstream row.
func NewFilter(eng *engine.Engine, dep Operator, condReg int) *Filter {
	return &Filter{Base: Base{Eng: eng, Dependencies: []Operator{dep}}, CondReg: condReg}
}

func truthy(v value.Value) bool {
	jv, err := v.ToJSON(nil)
	if err != nil {
		return false
	}
	b, ok := jv.(bool)
	return ok && b
}

// getOrSkipSome pulls upstream blocks, evaluates the predicate per row, and
// either slices survivors into the output (skipping == false) or just
// counts them (skipping == true), matching spec.md §4.2's shared
// get_or_skip_some shape specialized for row-count-changing operators.
func (f *Filter) getOrSkipSome(ctx context.Context, atLeast, atMost int, skipping bool) (*value.Block, int, error) {
	var collected []*value.Block
	count := 0
	for count < atMost {
		if err := f.Eng.CheckKilled(); err != nil {
			return nil, 0, err
		}
		if f.posVal() >= f.frontRows() {
			if f.Done() && f.bufLen() == 0 {
				break
			}
			blk, err := f.Dependency().GetSome(ctx, 1, atMost-count)
			if err != nil {
				return nil, 0, err
			}
			if blk == nil {
				f.markDone()
				if f.bufLen() == 0 {
					break
				}
			} else {
				f.pushBuf(blk)
			}
			continue
		}
		front := f.front()
		var idx []int
		suppressed := 0
		start := f.posVal()
		for i := start; i < front.NumRows() && count < atMost; i++ {
			if truthy(front.Get(i, f.CondReg)) {
				idx = append(idx, i)
				count++
			} else {
				suppressed++
			}
			f.advancePos()
		}
		f.Eng.Stats.Filtered += int64(suppressed)
		if len(idx) > 0 {
			if !skipping {
				collected = append(collected, front.SliceIndices(idx))
			}
		}
		if f.posVal() >= front.NumRows() {
			f.popFront()
		}
	}
	if count == 0 {
		return nil, 0, nil
	}
	if skipping {
		return nil, count, nil
	}
	out := value.Concatenate(collected)
	out.ClearRegisters(f.ClearRegs)
	return out, count, nil
}

func (f *Filter) GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error) {
	blk, _, err := f.getOrSkipSome(ctx, atLeast, atMost, false)
	return blk, err
}

func (f *Filter) SkipSome(ctx context.Context, atLeast, atMost int) (int, error) {
	_, n, err := f.getOrSkipSome(ctx, atLeast, atMost, true)
	return n, err
}

func (f *Filter) Skip(ctx context.Context, n int) (bool, error) { return f.Base.Skip(ctx, f, n) }

// --- small buffer accessors shared by the row-count-changing operators ---
// (Filter here and the Modification family; Aggregate/Limit keep their own
// state shapes since their windowing needs differ more from the generic
// PullRows case.)

func (b *Base) frontRows() int {
	if len(b.buffer) == 0 {
		return 0
	}
	return b.buffer[0].NumRows()
}
func (b *Base) front() *value.Block   { return b.buffer[0] }
func (b *Base) bufLen() int           { return len(b.buffer) }
func (b *Base) posVal() int           { return b.pos }
func (b *Base) advancePos()           { b.pos++ }
func (b *Base) pushBuf(blk *value.Block) { b.buffer = append(b.buffer, blk) }
func (b *Base) popFront() {
	b.buffer[0].Destroy()
	b.buffer = b.buffer[1:]
	b.pos = 0
}
func (b *Base) markDone() { b.done = true }
