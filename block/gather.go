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

// Gather merges the streams from several upstream dependencies — one per
// shard/DB-server, typically the coordinator-side leg of a Remote — back
// into a single stream (spec.md §4.7). In Simple mode it drains each
// dependency in turn via a small per-client deque; in sorted mode it
// performs a row-at-a-time merge by Keys, so that an input already sorted
// per shard comes out globally sorted without a full materialization.
type Gather struct {
	Base

	Keys   []SortKey // empty selects Simple (unordered) mode
	queues [][]*value.Block
	pos    []int
	done   []bool
}

// NewGather constructs a Gather over clients, merging by keys when keys is
// non-empty.
func NewGather(eng *engine.Engine, clients []Operator, keys []SortKey) *Gather {
	return &Gather{
		Base: Base{Eng: eng, Dependencies: clients},
		Keys: keys,
	}
}

func (g *Gather) InitializeCursor(ctx context.Context, input *value.Block, pos int) error {
	if err := g.Base.InitializeCursor(ctx, input, pos); err != nil {
		return err
	}
	n := len(g.Dependencies)
	g.queues = make([][]*value.Block, n)
	g.pos = make([]int, n)
	g.done = make([]bool, n)
	return nil
}

// ensure pulls one more block for client i if its queue is empty and it is
// not yet exhausted.
func (g *Gather) ensure(ctx context.Context, i int) error {
	for len(g.queues[i]) == 0 && !g.done[i] {
		blk, err := g.Dependencies[i].GetSome(ctx, 1, g.Eng.Config.DefaultBatchSize)
		if err != nil {
			return err
		}
		if blk == nil {
			g.done[i] = true
			return nil
		}
		g.queues[i] = append(g.queues[i], blk)
	}
	return nil
}

func (g *Gather) headRow(i int) (*value.Block, int) {
	if len(g.queues[i]) == 0 {
		return nil, 0
	}
	return g.queues[i][0], g.pos[i]
}

func (g *Gather) advance(i int) {
	g.pos[i]++
	front := g.queues[i][0]
	if g.pos[i] >= front.NumRows() {
		front.Destroy()
		g.queues[i] = g.queues[i][1:]
		g.pos[i] = 0
	}
}

func (g *Gather) cmp(ai int, a *value.Block, arow int, bi int, b *value.Block, brow int) int {
	for _, k := range g.Keys {
		c, err := value.Compare(nil, a.Get(arow, k.Reg), b.Get(brow, k.Reg))
		if err != nil {
			c = 0
		}
		if k.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func (g *Gather) nextSorted(ctx context.Context) (*value.Block, bool, error) {
	best := -1
	var bestBlk *value.Block
	var bestRow int
	for i := range g.Dependencies {
		if err := g.ensure(ctx, i); err != nil {
			return nil, false, err
		}
		blk, row := g.headRow(i)
		if blk == nil {
			continue
		}
		if best < 0 || g.cmp(i, blk, row, best, bestBlk, bestRow) < 0 {
			best, bestBlk, bestRow = i, blk, row
		}
	}
	if best < 0 {
		return nil, false, nil
	}
	row := bestBlk.SliceIndices([]int{bestRow})
	g.advance(best)
	return row, true, nil
}

func (g *Gather) nextSimple(ctx context.Context, start int) (*value.Block, int, bool, error) {
	for i := start; i < len(g.Dependencies); i++ {
		if err := g.ensure(ctx, i); err != nil {
			return nil, 0, false, err
		}
		if blk, row := g.headRow(i); blk != nil {
			out := blk.SliceIndices([]int{row})
			g.advance(i)
			return out, i + 1, true, nil
		}
	}
	return nil, len(g.Dependencies), false, nil
}

func (g *Gather) getOrSkipSome(ctx context.Context, atLeast, atMost int, skipping bool) (*value.Block, int, error) {
	var collected []*value.Block
	count := 0
	for count < atMost {
		if err := g.Eng.CheckKilled(); err != nil {
			return nil, 0, err
		}
		var row *value.Block
		var ok bool
		var err error
		if len(g.Keys) > 0 {
			row, ok, err = g.nextSorted(ctx)
		} else {
			row, _, ok, err = g.nextSimple(ctx, 0)
		}
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			break
		}
		count++
		if skipping {
			row.Destroy()
		} else {
			collected = append(collected, row)
		}
	}
	if count == 0 {
		return nil, 0, nil
	}
	if skipping {
		return nil, count, nil
	}
	out := value.Concatenate(collected)
	out.ClearRegisters(g.ClearRegs)
	return out, count, nil
}

func (g *Gather) GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error) {
	blk, _, err := g.getOrSkipSome(ctx, atLeast, atMost, false)
	return blk, err
}

func (g *Gather) SkipSome(ctx context.Context, atLeast, atMost int) (int, error) {
	_, n, err := g.getOrSkipSome(ctx, atLeast, atMost, true)
	return n, err
}

func (g *Gather) Skip(ctx context.Context, n int) (bool, error) { return g.Base.Skip(ctx, g, n) }

func (g *Gather) HasMore(ctx context.Context) (bool, error) {
	for _, done := range g.done {
		if !done {
			return true, nil
		}
	}
	for _, q := range g.queues {
		if len(q) > 0 {
			return true, nil
		}
	}
	return false, nil
}
