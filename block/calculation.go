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

// Calculation evaluates an expression per row and writes the result into
// OutReg (spec.md §4.4). Two fast paths are modeled directly: VarRef copies
// the source register's value (a deep copy via Clone, not a shared
// reference) and shares its collection pointer, without invoking the
// evaluator at all; Conditional takes an additional
// boolean register and emits Empty when it is false.
type Calculation struct {
	Base

	Expr        any
	VarRef      int // >= 0 selects the variable-reference fast path, ignoring Expr
	CondReg     int // >= 0 selects the conditional fast path
	OutReg      int
	MayRunUserCode bool
}

// NewCalculation constructs a Calculation evaluating Expr via eng.Eval for
// every row.
func NewCalculation(eng *engine.Engine, dep Operator, expr any, outReg int, mayRunUserCode bool) *Calculation {
	return &Calculation{
		Base:           Base{Eng: eng, Dependencies: []Operator{dep}},
		Expr:           expr,
		VarRef:         -1,
		CondReg:        -1,
		OutReg:         outReg,
		MayRunUserCode: mayRunUserCode,
	}
}

// NewVarRefCalculation constructs the pure variable-reference fast path.
func NewVarRefCalculation(eng *engine.Engine, dep Operator, srcReg, outReg int) *Calculation {
	return &Calculation{
		Base:    Base{Eng: eng, Dependencies: []Operator{dep}},
		VarRef:  srcReg,
		CondReg: -1,
		OutReg:  outReg,
	}
}

func (c *Calculation) transform(ctx context.Context, blk *value.Block) (*value.Block, error) {
	for row := 0; row < blk.NumRows(); row++ {
		if err := c.Eng.CheckKilled(); err != nil {
			return nil, err
		}
		if c.VarRef >= 0 {
			blk.Set(row, c.OutReg, blk.Get(row, c.VarRef).Clone())
			blk.SetCollection(c.OutReg, blk.Collection(c.VarRef))
			continue
		}
		if c.CondReg >= 0 {
			cond := blk.Get(row, c.CondReg)
			cj, _ := cond.ToJSON(nil)
			if b, ok := cj.(bool); !ok || !b {
				blk.Set(row, c.OutReg, value.NewEmpty())
				continue
			}
		}
		var token any
		var err error
		if c.MayRunUserCode {
			token, err = c.Eng.Eval.Acquire(ctx)
			if err != nil {
				return nil, err
			}
		}
		v, err := c.Eng.Eval.Evaluate(ctx, c.Expr, blk, row)
		if c.MayRunUserCode {
			c.Eng.Eval.Release(token)
		}
		if err != nil {
			return nil, err
		}
		blk.Set(row, c.OutReg, v)
	}
	return blk, nil
}

func (c *Calculation) GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error) {
	blk, _, err := PullRows(ctx, &c.Base, c.Dependency(), atLeast, atMost, false)
	if err != nil || blk == nil {
		return nil, err
	}
	return c.transform(ctx, blk)
}

func (c *Calculation) SkipSome(ctx context.Context, atLeast, atMost int) (int, error) {
	return PassthroughSkipSome(ctx, &c.Base, atLeast, atMost)
}

func (c *Calculation) Skip(ctx context.Context, n int) (bool, error) { return c.Base.Skip(ctx, c, n) }
