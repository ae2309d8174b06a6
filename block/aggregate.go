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

// GroupMode picks how a completed group is materialized on emission
// (spec.md §4.5); the three modes are mutually exclusive by plan flag.
type GroupMode int

const (
	CountOnly GroupMode = iota
	ExpressionRegister
	KeepVariables
)

// Aggregate groups consecutive runs of equal group-key tuples; rows must
// already arrive sorted by the group key (the optimizer is responsible for
// inserting a Sort ahead of this node when they do not), per spec.md §4.5.
type Aggregate struct {
	Base

	GroupRegs        []int
	Mode             GroupMode
	ExprReg          int      // ExpressionRegister mode
	VariableRegs     []int    // KeepVariables mode: registers to keep
	VariableNames    []string // KeepVariables mode: matching names
	OutReg           int
	TotalAggregation bool // emit one empty-group row when input is empty

	curBlock *value.Block
	curRow   int

	haveKey      bool
	keyVals      []value.Value
	groupLen     int64
	groupBlocks  []*value.Block
	groupRows    []int
	pendingRow   *value.Block
	pendingValid bool
	anyInput     bool
	upstreamDone bool
	fullyDone    bool
}

// NewAggregate constructs an Aggregate grouping on groupRegs.
func NewAggregate(eng *engine.Engine, dep Operator, groupRegs []int, mode GroupMode, outReg int, total bool) *Aggregate {
	return &Aggregate{
		Base:             Base{Eng: eng, Dependencies: []Operator{dep}},
		GroupRegs:        groupRegs,
		Mode:             mode,
		OutReg:           outReg,
		TotalAggregation: total,
	}
}

func (a *Aggregate) InitializeCursor(ctx context.Context, input *value.Block, pos int) error {
	if err := a.Base.InitializeCursor(ctx, input, pos); err != nil {
		return err
	}
	a.curBlock = nil
	a.curRow = 0
	a.haveKey = false
	a.keyVals = nil
	a.groupLen = 0
	a.groupBlocks = nil
	a.groupRows = nil
	a.pendingRow = nil
	a.pendingValid = false
	a.anyInput = false
	a.upstreamDone = false
	a.fullyDone = false
	return nil
}

// takeRow returns the next single upstream row as a 1-row block (it is the
// caller's to Destroy), or ok == false once upstream is exhausted.
func (a *Aggregate) takeRow(ctx context.Context) (*value.Block, bool, error) {
	if a.pendingValid {
		a.pendingValid = false
		return a.pendingRow, true, nil
	}
	for a.curBlock == nil || a.curRow >= a.curBlock.NumRows() {
		blk, err := a.Dependency().GetSome(ctx, 1, a.Eng.Config.DefaultBatchSize)
		if err != nil {
			return nil, false, err
		}
		if blk == nil {
			return nil, false, nil
		}
		a.curBlock = blk
		a.curRow = 0
	}
	row := a.curBlock.SliceIndices([]int{a.curRow})
	a.curRow++
	return row, true, nil
}

func (a *Aggregate) keyOf(row *value.Block) []value.Value {
	vals := make([]value.Value, len(a.GroupRegs))
	for i, reg := range a.GroupRegs {
		vals[i] = row.Get(0, reg)
	}
	return vals
}

func sameKey(a, b []value.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		c, err := value.Compare(nil, a[i], b[i])
		if err != nil || c != 0 {
			return false
		}
	}
	return true
}

func (a *Aggregate) startGroup(row *value.Block) {
	a.keyVals = a.keyOf(row)
	a.groupLen = 1
	a.groupBlocks = []*value.Block{row}
	a.haveKey = true
}

func (a *Aggregate) addRow(row *value.Block) {
	a.groupLen++
	a.groupBlocks = append(a.groupBlocks, row)
}

// closeGroup materializes the current group into a single output row per
// a.Mode and resets per-group state.
func (a *Aggregate) closeGroup() *value.Block {
	nregs := a.OutReg + 1
	for _, r := range a.GroupRegs {
		if r+1 > nregs {
			nregs = r + 1
		}
	}
	out := value.NewBlock(1, nregs)
	for i, reg := range a.GroupRegs {
		if !a.keyVals[i].IsEmpty() {
			out.Set(0, reg, a.keyVals[i].Clone())
		}
	}
	switch a.Mode {
	case CountOnly:
		out.Set(0, a.OutReg, value.NewJSON(float64(a.groupLen)))
	case ExpressionRegister:
		arr := make([]any, 0, len(a.groupBlocks))
		for _, b := range a.groupBlocks {
			v := b.Get(0, a.ExprReg)
			jv, err := v.ToJSON(nil)
			if err == nil {
				arr = append(arr, jv)
			}
		}
		out.Set(0, a.OutReg, value.NewJSON(arr))
	case KeepVariables:
		arr := make([]any, 0, len(a.groupBlocks))
		for _, b := range a.groupBlocks {
			obj := make(map[string]any, len(a.VariableRegs))
			for i, reg := range a.VariableRegs {
				v := b.Get(0, reg)
				if v.Tag == value.Shaped {
					v = value.NewJSON(mustJSON(v))
				}
				jv, _ := v.ToJSON(nil)
				obj[a.VariableNames[i]] = jv
			}
			arr = append(arr, obj)
		}
		out.Set(0, a.OutReg, value.NewJSON(arr))
	}
	for _, b := range a.groupBlocks {
		b.Destroy()
	}
	a.groupBlocks = nil
	a.groupLen = 0
	a.haveKey = false
	return out
}

func mustJSON(v value.Value) any {
	jv, err := v.ToJSON(nil)
	if err != nil {
		return nil
	}
	return jv
}

func (a *Aggregate) emitEmptyGroup() *value.Block {
	out := value.NewBlock(1, a.OutReg+1)
	if a.Mode == CountOnly {
		out.Set(0, a.OutReg, value.NewJSON(float64(0)))
	} else {
		out.Set(0, a.OutReg, value.NewJSON([]any{}))
	}
	return out
}

// nextGroup returns one completed group's output row, or nil once there is
// nothing left to emit (spec.md §4.5's "emit the stashed group ... begin a
// new one" / "on end-of-input emit the last group").
func (a *Aggregate) nextGroup(ctx context.Context) (*value.Block, error) {
	if a.fullyDone {
		return nil, nil
	}
	for {
		if err := a.Eng.CheckKilled(); err != nil {
			return nil, err
		}
		row, ok, err := a.takeRow(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			if a.haveKey {
				out := a.closeGroup()
				a.fullyDone = true
				return out, nil
			}
			if a.TotalAggregation && !a.anyInput {
				a.anyInput = true
				a.fullyDone = true
				return a.emitEmptyGroup(), nil
			}
			a.fullyDone = true
			return nil, nil
		}
		a.anyInput = true
		if !a.haveKey {
			a.startGroup(row)
			continue
		}
		key := a.keyOf(row)
		if sameKey(key, a.keyVals) {
			a.addRow(row)
			continue
		}
		out := a.closeGroup()
		a.pendingRow = row
		a.pendingValid = true
		return out, nil
	}
}

func (a *Aggregate) GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error) {
	var blocks []*value.Block
	for len(blocks) < atMost {
		g, err := a.nextGroup(ctx)
		if err != nil {
			return nil, err
		}
		if g == nil {
			break
		}
		blocks = append(blocks, g)
	}
	if len(blocks) == 0 {
		return nil, nil
	}
	out := value.Concatenate(blocks)
	out.ClearRegisters(a.ClearRegs)
	return out, nil
}

func (a *Aggregate) SkipSome(ctx context.Context, atLeast, atMost int) (int, error) {
	blk, err := a.GetSome(ctx, atLeast, atMost)
	if err != nil || blk == nil {
		return 0, err
	}
	n := blk.NumRows()
	blk.Destroy()
	return n, nil
}

func (a *Aggregate) Skip(ctx context.Context, n int) (bool, error) { return a.Base.Skip(ctx, a, n) }

func (a *Aggregate) HasMore(ctx context.Context) (bool, error) { return !a.fullyDone, nil }
