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

// Limit skips Offset rows, forwards up to Count rows, then discards the
// rest of its input while still counting it when FullCount is requested
// (spec.md §4.5). It runs a three-state machine: skipping the offset,
// forwarding the window, and draining for full_count.
type Limit struct {
	Base

	Offset    int64
	MaxRows   int64
	FullCount bool

	state     int // 0 = skipping offset, 1 = forwarding, 2 = draining for full count, 3 = full count added to Eng.Stats
	forwarded int64
	total     int64
}

// NewLimit constructs a Limit skipping offset rows and forwarding up to
// count afterward.
func NewLimit(eng *engine.Engine, dep Operator, offset, count int64, fullCount bool) *Limit {
	return &Limit{
		Base:      Base{Eng: eng, Dependencies: []Operator{dep}},
		Offset:    offset,
		MaxRows:   count,
		FullCount: fullCount,
	}
}

func (l *Limit) InitializeCursor(ctx context.Context, input *value.Block, pos int) error {
	if err := l.Base.InitializeCursor(ctx, input, pos); err != nil {
		return err
	}
	l.state = 0
	l.forwarded = 0
	l.total = 0
	return nil
}

// FullCountValue returns the total number of rows seen so far, including
// the skipped offset and everything past the limit window; it is only
// meaningful once the operator has fully drained (spec.md §4.5:
// "full_count ... equals the total number of rows the un-limited query
// would have produced").
func (l *Limit) FullCountValue() int64 { return l.total }

func (l *Limit) getOrSkipSome(ctx context.Context, atLeast, atMost int, skipping bool) (*value.Block, int, error) {
	if l.state == 0 {
		for l.total < l.Offset {
			if err := l.Eng.CheckKilled(); err != nil {
				return nil, 0, err
			}
			n, err := l.Dependency().SkipSome(ctx, 1, int(minInt64(l.Offset-l.total, 1<<30)))
			if err != nil {
				return nil, 0, err
			}
			if n == 0 {
				more, err := l.Dependency().HasMore(ctx)
				if err != nil {
					return nil, 0, err
				}
				if !more {
					break
				}
				continue
			}
			l.total += int64(n)
		}
		l.state = 1
	}

	if l.state == 1 {
		remaining := l.MaxRows - l.forwarded
		if remaining <= 0 {
			l.state = 2
		} else {
			want := atMost
			if int64(want) > remaining {
				want = int(remaining)
			}
			if skipping {
				n, err := l.Dependency().SkipSome(ctx, 1, want)
				if err != nil {
					return nil, 0, err
				}
				l.forwarded += int64(n)
				l.total += int64(n)
				if n > 0 {
					return nil, n, nil
				}
				l.state = 2
			} else {
				blk, err := l.Dependency().GetSome(ctx, 1, want)
				if err != nil {
					return nil, 0, err
				}
				if blk != nil {
					n := blk.NumRows()
					l.forwarded += int64(n)
					l.total += int64(n)
					blk.ClearRegisters(l.ClearRegs)
					return blk, n, nil
				}
				l.state = 2
			}
		}
	}

	if l.state == 2 {
		if !l.FullCount {
			return nil, 0, nil
		}
		for {
			if err := l.Eng.CheckKilled(); err != nil {
				return nil, 0, err
			}
			n, err := l.Dependency().SkipSome(ctx, 1, 1<<20)
			if err != nil {
				return nil, 0, err
			}
			if n == 0 {
				more, err := l.Dependency().HasMore(ctx)
				if err != nil {
					return nil, 0, err
				}
				if !more {
					l.Eng.Stats.EnableFullCount()
					l.Eng.Stats.FullCount += l.total
					l.state = 3
					return nil, 0, nil
				}
				continue
			}
			l.total += int64(n)
		}
	}

	return nil, 0, nil
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func (l *Limit) GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error) {
	blk, _, err := l.getOrSkipSome(ctx, atLeast, atMost, false)
	return blk, err
}

func (l *Limit) SkipSome(ctx context.Context, atLeast, atMost int) (int, error) {
	_, n, err := l.getOrSkipSome(ctx, atLeast, atMost, true)
	return n, err
}

func (l *Limit) Skip(ctx context.Context, n int) (bool, error) { return l.Base.Skip(ctx, l, n) }

func (l *Limit) HasMore(ctx context.Context) (bool, error) {
	return l.state < 1 || (l.state == 1 && l.forwarded < l.MaxRows), nil
}

func (l *Limit) Count(ctx context.Context) (int64, error) { return l.MaxRows, nil }
