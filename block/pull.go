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

	"github.com/arangodb/aqlengine/value"
)

// PullRows is the shared get_or_skip_some described in spec.md §4.2: it
// pulls blocks from dep into b's buffer, slices according to b's cursor and
// the requested window, and either concatenates the slices (skipping ==
// false) or just counts rows dropped (skipping == true). Operators that do
// not change row count or shape (Calculation, Return, the cluster shim
// operators' pass-through legs) call this directly from GetSome/SkipSome;
// operators that do (Filter, Aggregate, Limit, the Modification family)
// implement their own version instead.
func PullRows(ctx context.Context, b *Base, dep Operator, atLeast, atMost int, skipping bool) (*value.Block, int, error) {
	if atMost <= 0 {
		return nil, 0, nil
	}
	var collected []*value.Block
	count := 0
	for count < atMost {
		if len(b.buffer) == 0 {
			if b.done {
				break
			}
			need := atMost - count
			if need < atLeast {
				need = atLeast
			}
			blk, err := dep.GetSome(ctx, 1, need)
			if err != nil {
				return nil, 0, err
			}
			if blk == nil {
				b.done = true
				break
			}
			b.buffer = append(b.buffer, blk)
		}
		front := b.buffer[0]
		avail := front.NumRows() - b.pos
		take := avail
		if count+take > atMost {
			take = atMost - count
		}
		if !skipping {
			idx := make([]int, take)
			for i := range idx {
				idx[i] = b.pos + i
			}
			collected = append(collected, front.SliceIndices(idx))
		}
		count += take
		b.pos += take
		if b.pos >= front.NumRows() {
			b.buffer = b.buffer[1:]
			b.pos = 0
			front.Destroy()
		}
	}
	if count == 0 {
		return nil, 0, nil
	}
	if skipping {
		return nil, count, nil
	}
	out := value.Concatenate(collected)
	out.ClearRegisters(b.ClearRegs)
	return out, count, nil
}

// PassthroughGetSome is the GetSome a one-dependency, row-count-preserving
// operator uses once it has already transformed its upstream block (the
// transform itself is operator-specific; this helper only handles the
// windowing/buffering contract).
func PassthroughGetSome(ctx context.Context, b *Base, atLeast, atMost int) (*value.Block, error) {
	blk, _, err := PullRows(ctx, b, b.Dependency(), atLeast, atMost, false)
	return blk, err
}

// PassthroughSkipSome mirrors PassthroughGetSome for SkipSome.
func PassthroughSkipSome(ctx context.Context, b *Base, atLeast, atMost int) (int, error) {
	_, n, err := PullRows(ctx, b, b.Dependency(), atLeast, atMost, true)
	return n, err
}
