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
	"container/heap"
	"context"
	"encoding/gob"
	"fmt"
	"os"

	"golang.org/x/exp/slices"

	"github.com/arangodb/aqlengine/engine"
	"github.com/arangodb/aqlengine/value"
)

// SortKey is one ORDER BY column: a register plus direction.
type SortKey struct {
	Reg  int
	Desc bool
}

// Sort is fully blocking (spec.md §4.5): it pulls all upstream blocks,
// sorts a coordinate list by a comparator chaining per-key comparisons, and
// re-materializes the sorted rows as one block that GetSome hands out in
// slices of at most atMost rows; the rows are not regrouped into batches of
// engine.Config.DefaultBatchSize.
//
// SPEC_FULL.md §4.5 adds an external, batch-wise merge when the buffered
// row count would exceed engine.Config.SortSpillRows: runs of that size are
// sorted in memory and written to a temp file, then a k-way merge produces
// the final order without holding every row at once. A spilled run's rows
// are persisted as their JSON projection (register -> JSON value): a
// Shaped value's storage pointer cannot outlive the transaction that
// issued it (spec.md §5), so once a run has been written to disk its rows
// are necessarily materialized as JSON rather than re-using the original
// document pointers.
type Sort struct {
	Base

	Keys   []SortKey
	Stable bool

	out    *value.Block
	outPos int
	runs   []*sortRun
}

type sortRun struct {
	path string
	dec  *gob.Decoder
	f    *os.File
	next []any // decoded next row's register values, nil at EOF
}

// NewSort constructs a Sort ordering by keys.
func NewSort(eng *engine.Engine, dep Operator, keys []SortKey, stable bool) *Sort {
	return &Sort{Base: Base{Eng: eng, Dependencies: []Operator{dep}}, Keys: keys, Stable: stable}
}

func (s *Sort) InitializeCursor(ctx context.Context, input *value.Block, pos int) error {
	if err := s.Base.InitializeCursor(ctx, input, pos); err != nil {
		return err
	}
	s.closeRuns()
	s.out = nil
	s.outPos = 0
	return nil
}

func (s *Sort) Shutdown(code engine.Code) error {
	s.closeRuns()
	return s.Base.Shutdown(code)
}

func (s *Sort) closeRuns() {
	for _, r := range s.runs {
		if r.f != nil {
			r.f.Close()
		}
		if r.path != "" {
			os.Remove(r.path)
		}
	}
	s.runs = nil
}

func (s *Sort) cmpRows(a, b *value.Block, ai, bi int) int {
	for _, k := range s.Keys {
		c, err := value.Compare(nil, a.Get(ai, k.Reg), b.Get(bi, k.Reg))
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

func (s *Sort) materialize(ctx context.Context) error {
	budget := s.Eng.Config.SortSpillRows
	var pending *value.Block
	var chunks []*value.Block
	flushRun := func() error {
		if pending == nil || pending.NumRows() == 0 {
			return nil
		}
		idx := make([]int, pending.NumRows())
		for i := range idx {
			idx[i] = i
		}
		s.sortIndices(pending, idx)
		run, err := s.writeRun(pending, idx)
		if err != nil {
			return err
		}
		s.runs = append(s.runs, run)
		pending = nil
		return nil
	}
	for {
		if err := s.Eng.CheckKilled(); err != nil {
			return err
		}
		blk, err := s.Dependency().GetSome(ctx, 1, s.Eng.Config.DefaultBatchSize)
		if err != nil {
			return err
		}
		if blk == nil {
			break
		}
		if budget <= 0 {
			chunks = append(chunks, blk)
			continue
		}
		if pending == nil {
			pending = blk
		} else {
			pending = value.Concatenate([]*value.Block{pending, blk})
		}
		if pending.NumRows() >= budget {
			if err := flushRun(); err != nil {
				return err
			}
		}
	}
	if budget <= 0 {
		all := value.Concatenate(chunks)
		idx := make([]int, all.NumRows())
		for i := range idx {
			idx[i] = i
		}
		s.sortIndices(all, idx)
		s.out = all.SliceIndices(idx)
		return nil
	}
	if len(s.runs) == 0 {
		if pending == nil {
			s.out = value.NewBlock(0, 0)
			return nil
		}
		idx := make([]int, pending.NumRows())
		for i := range idx {
			idx[i] = i
		}
		s.sortIndices(pending, idx)
		s.out = pending.SliceIndices(idx)
		return nil
	}
	if err := flushRun(); err != nil {
		return err
	}
	return s.mergeRuns()
}

func (s *Sort) sortIndices(blk *value.Block, idx []int) {
	less := func(a, b int) bool { return s.cmpRows(blk, blk, a, b) < 0 }
	if s.Stable {
		slices.SortStableFunc(idx, less)
	} else {
		slices.SortFunc(idx, less)
	}
}

func (s *Sort) writeRun(blk *value.Block, idx []int) (*sortRun, error) {
	f, err := os.CreateTemp("", "aqlengine-sort-run-*.gob")
	if err != nil {
		return nil, fmt.Errorf("sort: creating spill file: %w", err)
	}
	enc := gob.NewEncoder(f)
	nregs := blk.NumRegs()
	for _, i := range idx {
		row := make([]any, nregs)
		for reg := 0; reg < nregs; reg++ {
			jv, err := blk.Get(i, reg).ToJSON(nil)
			if err != nil {
				f.Close()
				os.Remove(f.Name())
				return nil, err
			}
			row[reg] = jv
		}
		if err := enc.Encode(row); err != nil {
			f.Close()
			os.Remove(f.Name())
			return nil, fmt.Errorf("sort: writing spill run: %w", err)
		}
	}
	name := f.Name()
	f.Close()
	return &sortRun{path: name}, nil
}

// runHeap is a min-heap over the runs' current head row, per the
// comparator, used by mergeRuns for the k-way merge.
type runHeap struct {
	s    *Sort
	runs []*sortRun
}

func (h *runHeap) Len() int { return len(h.runs) }
func (h *runHeap) Less(i, j int) bool {
	return h.s.cmpJSONRows(h.runs[i].next, h.runs[j].next) < 0
}
func (h *runHeap) Swap(i, j int) { h.runs[i], h.runs[j] = h.runs[j], h.runs[i] }
func (h *runHeap) Push(x any)    { h.runs = append(h.runs, x.(*sortRun)) }
func (h *runHeap) Pop() any {
	n := len(h.runs)
	r := h.runs[n-1]
	h.runs = h.runs[:n-1]
	return r
}

func (s *Sort) cmpJSONRows(a, b []any) int {
	for _, k := range s.Keys {
		var av, bv any
		if k.Reg < len(a) {
			av = a[k.Reg]
		}
		if k.Reg < len(b) {
			bv = b[k.Reg]
		}
		c := jsonCompareAny(av, bv)
		if k.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// jsonCompareAny compares two already-decoded JSON values the same way
// value.Compare would for JSON-tagged values, without needing a Value
// wrapper just to compare scalars read back from a spill file.
func jsonCompareAny(a, b any) int {
	av := value.NewJSON(a)
	bv := value.NewJSON(b)
	c, _ := value.Compare(nil, av, bv)
	return c
}

func (r *sortRun) open() error {
	f, err := os.Open(r.path)
	if err != nil {
		return err
	}
	r.f = f
	r.dec = gob.NewDecoder(f)
	return r.advance()
}

func (r *sortRun) advance() error {
	var row []any
	if err := r.dec.Decode(&row); err != nil {
		r.next = nil
		return nil
	}
	r.next = row
	return nil
}

func (s *Sort) mergeRuns() error {
	h := &runHeap{s: s}
	for _, r := range s.runs {
		if err := r.open(); err != nil {
			return err
		}
		if r.next != nil {
			h.runs = append(h.runs, r)
		}
	}
	heap.Init(h)
	var rows [][]any
	nregs := 0
	for h.Len() > 0 {
		top := h.runs[0]
		rows = append(rows, top.next)
		if len(top.next) > nregs {
			nregs = len(top.next)
		}
		if err := top.advance(); err != nil {
			return err
		}
		if top.next == nil {
			heap.Pop(h)
		} else {
			heap.Fix(h, 0)
		}
	}
	out := value.NewBlock(len(rows), nregs)
	for i, row := range rows {
		for reg, jv := range row {
			if jv != nil {
				out.Set(i, reg, value.NewJSON(jv))
			}
		}
	}
	s.out = out
	return nil
}

func (s *Sort) ensureMaterialized(ctx context.Context) error {
	if s.out != nil {
		return nil
	}
	return s.materialize(ctx)
}

func (s *Sort) getOrSkipSome(ctx context.Context, atLeast, atMost int, skipping bool) (*value.Block, int, error) {
	if err := s.ensureMaterialized(ctx); err != nil {
		return nil, 0, err
	}
	avail := s.out.NumRows() - s.outPos
	if avail <= 0 {
		return nil, 0, nil
	}
	take := avail
	if take > atMost {
		take = atMost
	}
	if skipping {
		s.outPos += take
		return nil, take, nil
	}
	idx := make([]int, take)
	for i := range idx {
		idx[i] = s.outPos + i
	}
	s.outPos += take
	out := s.out.SliceIndices(idx)
	out.ClearRegisters(s.ClearRegs)
	return out, take, nil
}

func (s *Sort) GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error) {
	blk, _, err := s.getOrSkipSome(ctx, atLeast, atMost, false)
	return blk, err
}

func (s *Sort) SkipSome(ctx context.Context, atLeast, atMost int) (int, error) {
	_, n, err := s.getOrSkipSome(ctx, atLeast, atMost, true)
	return n, err
}

func (s *Sort) Skip(ctx context.Context, n int) (bool, error) { return s.Base.Skip(ctx, s, n) }

func (s *Sort) HasMore(ctx context.Context) (bool, error) {
	if s.out == nil {
		return true, nil
	}
	return s.outPos < s.out.NumRows(), nil
}

func (s *Sort) Count(ctx context.Context) (int64, error) {
	if s.out == nil {
		return -1, nil
	}
	return int64(s.out.NumRows()), nil
}
