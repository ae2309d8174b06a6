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

// Subquery has two dependencies: the outer plan (Dependencies[0]) and the
// inner plan (Dependencies[1]). For each outer row it (re-)initializes the
// inner plan with that row, drains it into a list of child blocks, and
// places the list (a DocVec) into OutReg (spec.md §4.4). Constant-
// deterministic subqueries may set Reuse to reuse the previous result
// across outer rows, though nothing in this core ever sets it (see
// DESIGN.md's Open Question decision #2).
type Subquery struct {
	Base

	OutReg int
	Reuse  bool

	lastResult []value.DocVecEntry
	haveResult bool
}

// NewSubquery constructs a Subquery with outer dependency outer and inner
// plan root inner.
func NewSubquery(eng *engine.Engine, outer, inner Operator, outReg int) *Subquery {
	return &Subquery{
		Base:   Base{Eng: eng, Dependencies: []Operator{outer, inner}},
		OutReg: outReg,
	}
}

func (s *Subquery) outer() Operator { return s.Dependencies[0] }
func (s *Subquery) inner() Operator { return s.Dependencies[1] }

func (s *Subquery) drainInner(ctx context.Context, outerRow *value.Block, pos int) ([]value.DocVecEntry, error) {
	if err := s.inner().InitializeCursor(ctx, outerRow, pos); err != nil {
		return nil, err
	}
	var entries []value.DocVecEntry
	for {
		if err := s.Eng.CheckKilled(); err != nil {
			return nil, err
		}
		blk, err := s.inner().GetSome(ctx, 1, s.Eng.Config.DefaultBatchSize)
		if err != nil {
			return nil, err
		}
		if blk == nil {
			break
		}
		entries = append(entries, value.DocVecEntry{Block: blk, NumRegs: blk.NumRegs()})
	}
	return entries, nil
}

func (s *Subquery) transform(ctx context.Context, outerBlk *value.Block) (*value.Block, error) {
	for row := 0; row < outerBlk.NumRows(); row++ {
		var entries []value.DocVecEntry
		var err error
		if s.Reuse && s.haveResult {
			entries = s.lastResult
		} else {
			entries, err = s.drainInner(ctx, outerBlk, row)
			if err != nil {
				return nil, err
			}
			if s.Reuse {
				s.lastResult = entries
				s.haveResult = true
			}
		}
		outerBlk.Set(row, s.OutReg, value.NewDocVec(entries))
	}
	return outerBlk, nil
}

func (s *Subquery) GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error) {
	blk, _, err := PullRows(ctx, &s.Base, s.outer(), atLeast, atMost, false)
	if err != nil || blk == nil {
		return nil, err
	}
	return s.transform(ctx, blk)
}

func (s *Subquery) SkipSome(ctx context.Context, atLeast, atMost int) (int, error) {
	blk, err := s.GetSome(ctx, atLeast, atMost)
	if err != nil || blk == nil {
		return 0, err
	}
	n := blk.NumRows()
	blk.Destroy()
	return n, nil
}

func (s *Subquery) Skip(ctx context.Context, n int) (bool, error) { return s.Base.Skip(ctx, s, n) }
