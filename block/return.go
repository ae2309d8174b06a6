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

// Return is the root operator of every plan (spec.md §4.5): it steals its
// single input register into a fresh one-column block, leaving the
// upstream register nulled, so the final result carries exactly the
// projected value and nothing the rest of the row accumulated along the
// way.
type Return struct {
	Base

	InReg     int
	CountMode bool // CountFlag variant: tally rows instead of returning them
	n         int64
}

// NewReturn constructs a Return projecting inReg.
func NewReturn(eng *engine.Engine, dep Operator, inReg int) *Return {
	return &Return{Base: Base{Eng: eng, Dependencies: []Operator{dep}}, InReg: inReg}
}

// NewCountReturn constructs a Return in COUNT mode: it discards every row
// and ultimately hands back a single row holding the input row count.
func NewCountReturn(eng *engine.Engine, dep Operator) *Return {
	return &Return{Base: Base{Eng: eng, Dependencies: []Operator{dep}}, CountMode: true}
}

func (r *Return) InitializeCursor(ctx context.Context, input *value.Block, pos int) error {
	if err := r.Base.InitializeCursor(ctx, input, pos); err != nil {
		return err
	}
	r.n = 0
	return nil
}

func (r *Return) transform(blk *value.Block) *value.Block {
	out := value.NewBlock(blk.NumRows(), 1)
	for row := 0; row < blk.NumRows(); row++ {
		out.Set(row, 0, blk.Steal(row, r.InReg))
	}
	blk.Destroy()
	return out
}

func (r *Return) GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error) {
	if r.CountMode {
		for {
			if err := r.Eng.CheckKilled(); err != nil {
				return nil, err
			}
			n, err := r.Dependency().SkipSome(ctx, 1, r.Eng.Config.DefaultBatchSize)
			if err != nil {
				return nil, err
			}
			if n == 0 {
				more, err := r.Dependency().HasMore(ctx)
				if err != nil {
					return nil, err
				}
				if !more {
					break
				}
				continue
			}
			r.n += int64(n)
		}
		if r.done {
			return nil, nil
		}
		r.done = true
		out := value.NewBlock(1, 1)
		out.Set(0, 0, value.NewJSON(float64(r.n)))
		return out, nil
	}

	blk, _, err := PullRows(ctx, &r.Base, r.Dependency(), atLeast, atMost, false)
	if err != nil || blk == nil {
		return nil, err
	}
	return r.transform(blk), nil
}

func (r *Return) SkipSome(ctx context.Context, atLeast, atMost int) (int, error) {
	if r.CountMode {
		blk, err := r.GetSome(ctx, atLeast, atMost)
		if err != nil || blk == nil {
			return 0, err
		}
		n := blk.NumRows()
		blk.Destroy()
		return n, nil
	}
	return PassthroughSkipSome(ctx, &r.Base, atLeast, atMost)
}

func (r *Return) Skip(ctx context.Context, n int) (bool, error) { return r.Base.Skip(ctx, r, n) }

func (r *Return) HasMore(ctx context.Context) (bool, error) {
	if r.CountMode {
		return !r.done, nil
	}
	return r.Base.HasMore(ctx)
}
