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
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/arangodb/aqlengine/engine"
	"github.com/arangodb/aqlengine/value"
)

// BoundOp is one attribute-range predicate operator.
type BoundOp int

const (
	OpEQ BoundOp = iota
	OpGE
	OpLE
	OpGT
	OpLT
)

// Bound is one attribute range predicate, possibly with a non-constant
// right-hand side that must be evaluated against the current row before
// the index can be consulted (spec.md §4.3 phase 1).
type Bound struct {
	Attr  string
	Op    BoundOp
	Const any  // valid when Expr == nil
	Expr  any  // opaque expression, evaluated via engine.Evaluator when non-nil
}

// Conjunct is one "and" of attribute-range predicates.
type Conjunct struct {
	Bounds []Bound
}

// resolvedConjunct is a Conjunct with every bound reduced to a constant,
// the input to Transaction.Lookup.
type resolvedConjunct struct {
	bounds      []Bound
	leadConst   any // the constant bound on the index's first column, for disjunct ordering
	unsatisfiable bool
}

// IndexRange is the source described in spec.md §4.3: given a disjunction
// of conjunctions of attribute range predicates over a chosen index, it
// produces document rows, three phases per upstream row (init_ranges,
// choose iterator, read_index).
type IndexRange struct {
	Base

	Collection string
	Index      string
	Kind       string // "primary", "edge", "hash", "skiplist"
	Reverse    bool
	Disjuncts  []Conjunct
	OutReg     int

	curInputBlock *value.Block
	curInputRow   int
	resolved      []resolvedConjunct
	disjIdx       int
	iter          engine.IndexIterator
	upDone        bool
}

// NewIndexRange constructs an IndexRange source.
func NewIndexRange(eng *engine.Engine, dep Operator, collection, index, kind string, reverse bool, disjuncts []Conjunct, outReg int) *IndexRange {
	return &IndexRange{
		Base:       Base{Eng: eng, Dependencies: []Operator{dep}},
		Collection: collection,
		Index:      index,
		Kind:       kind,
		Reverse:    reverse,
		Disjuncts:  disjuncts,
		OutReg:     outReg,
	}
}

func (ir *IndexRange) InitializeCursor(ctx context.Context, input *value.Block, pos int) error {
	if err := ir.Base.InitializeCursor(ctx, input, pos); err != nil {
		return err
	}
	ir.curInputBlock = nil
	ir.curInputRow = 0
	ir.resolved = nil
	ir.disjIdx = 0
	ir.upDone = false
	if ir.iter != nil {
		ir.iter.Close()
		ir.iter = nil
	}
	return nil
}

func (ir *IndexRange) Shutdown(code engine.Code) error {
	if ir.iter != nil {
		ir.iter.Close()
		ir.iter = nil
	}
	return ir.Base.Shutdown(code)
}

// initRanges evaluates every non-constant bound against the current
// upstream row and explodes array-valued bounds into separate equality
// disjuncts, producing ir.resolved. An equality predicate against a
// non-string value on _id/_key yields an explicitly unsatisfiable
// conjunct (spec.md §4.3 edge cases).
func (ir *IndexRange) initRanges(ctx context.Context) error {
	ir.resolved = ir.resolved[:0]
	row := ir.curInputBlock
	r := ir.curInputRow
	for _, conj := range ir.Disjuncts {
		var expanded [][]Bound
		expanded = append(expanded, nil)
		for _, b := range conj.Bounds {
			val := b.Const
			if b.Expr != nil {
				tok, err := ir.Eng.Eval.Acquire(ctx)
				if err != nil {
					return err
				}
				v, err := ir.Eng.Eval.Evaluate(ctx, b.Expr, row, r)
				ir.Eng.Eval.Release(tok)
				if err != nil {
					return err
				}
				jv, err := v.ToJSON(nil)
				if err != nil {
					return err
				}
				val = jv
			}
			if arr, ok := val.([]any); ok && b.Op == OpEQ {
				// array-valued equality bound: each element becomes its
				// own equality disjunct (spec.md §4.3 edge cases)
				next := make([][]Bound, 0, len(expanded)*len(arr))
				for _, prefix := range expanded {
					for _, elem := range arr {
						cp := append(append([]Bound{}, prefix...), Bound{Attr: b.Attr, Op: OpEQ, Const: elem})
						next = append(next, cp)
					}
				}
				expanded = next
				continue
			}
			for i := range expanded {
				expanded[i] = append(expanded[i], Bound{Attr: b.Attr, Op: b.Op, Const: val})
			}
		}
		for _, bounds := range expanded {
			rc := resolvedConjunct{bounds: bounds}
			if (ir.Kind == "primary" || ir.Kind == "edge") && isKeyAttr(bounds) {
				if !isKeyEquality(bounds) {
					rc.unsatisfiable = true
				}
			}
			rc.leadConst = leadConstOf(bounds)
			ir.resolved = append(ir.resolved, rc)
		}
	}
	// deduplicate overlapping ORs and sort by the leading constant bound
	// so output order is stable, per spec.md §4.3 phase 2 ("skiplist").
	ir.resolved = dedupConjuncts(ir.resolved)
	slices.SortStableFunc(ir.resolved, func(a, b resolvedConjunct) bool {
		return lessLeadConst(a.leadConst, b.leadConst)
	})
	if len(ir.resolved) == 0 && ir.Kind == "skiplist" {
		// no predicate at all: a skiplist index uses >= null (full range)
		ir.resolved = []resolvedConjunct{{bounds: []Bound{{Op: OpGE, Const: nil}}}}
	}
	return nil
}

func isKeyAttr(bounds []Bound) bool {
	for _, b := range bounds {
		if b.Attr == "_id" || b.Attr == "_key" {
			return true
		}
	}
	return len(bounds) == 0
}

func isKeyEquality(bounds []Bound) bool {
	for _, b := range bounds {
		if b.Op != OpEQ {
			return false
		}
		if _, ok := b.Const.(string); !ok {
			return false
		}
	}
	return true
}

func leadConstOf(bounds []Bound) any {
	if len(bounds) == 0 {
		return nil
	}
	return bounds[0].Const
}

func lessLeadConst(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af < bf
	}
	as, asok := a.(string)
	bs, bsok := b.(string)
	if asok && bsok {
		return as < bs
	}
	return false
}

func dedupConjuncts(in []resolvedConjunct) []resolvedConjunct {
	seen := map[string]bool{}
	out := make([]resolvedConjunct, 0, len(in))
	for _, rc := range in {
		key := conjKey(rc)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rc)
	}
	return out
}

func conjKey(rc resolvedConjunct) string {
	s := ""
	for _, b := range rc.bounds {
		s += b.Attr + "|" + itoaOp(b.Op) + "|" + toKeyString(b.Const) + ";"
	}
	return s
}

func itoaOp(op BoundOp) string {
	switch op {
	case OpEQ:
		return "eq"
	case OpGE:
		return "ge"
	case OpLE:
		return "le"
	case OpGT:
		return "gt"
	case OpLT:
		return "lt"
	default:
		return "?"
	}
}

func toKeyString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "<nil>"
	default:
		return fmt.Sprintf("%T:%v", t, t)
	}
}

// advanceDisjunct opens the iterator for the next satisfiable resolved
// conjunct, skipping unsatisfiable ones (spec.md §4.3 edge cases).
func (ir *IndexRange) advanceDisjunct(ctx context.Context) (bool, error) {
	for {
		if ir.iter != nil {
			ir.iter.Close()
			ir.iter = nil
		}
		if ir.disjIdx >= len(ir.resolved) {
			return false, nil
		}
		rc := ir.resolved[ir.disjIdx]
		ir.disjIdx++
		if rc.unsatisfiable {
			continue
		}
		it, err := ir.Eng.Transaction.Lookup(ctx, ir.Collection, ir.Index, ir.Kind, rc.bounds)
		if err != nil {
			return false, err
		}
		ir.iter = it
		return true, nil
	}
}

// advanceInputRow pulls the next upstream row and runs init_ranges/choose
// iterator for it (spec.md §4.3 phases 1-2).
func (ir *IndexRange) advanceInputRow(ctx context.Context) (bool, error) {
	for {
		if ir.curInputBlock != nil && ir.curInputRow < ir.curInputBlock.NumRows() {
			if err := ir.initRanges(ctx); err != nil {
				return false, err
			}
			ir.disjIdx = 0
			ok, err := ir.advanceDisjunct(ctx)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
			ir.curInputRow++
			continue
		}
		blk, err := ir.Dependency().GetSome(ctx, 1, ir.Eng.Config.DefaultBatchSize)
		if err != nil {
			return false, err
		}
		if blk == nil {
			return false, nil
		}
		ir.curInputBlock = blk
		ir.curInputRow = 0
	}
}

func (ir *IndexRange) emit(ctx context.Context, atMost int) (*value.Block, error) {
	out := value.NewBlock(atMost, ir.OutReg+1)
	n := 0
	for n < atMost {
		if err := ir.Eng.CheckKilled(); err != nil {
			return nil, err
		}
		if ir.iter == nil {
			ok, err := ir.advanceInputRow(ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
		}
		docs, err := ir.iter.Next(ctx, nil, atMost-n)
		if err != nil {
			return nil, err
		}
		ir.Eng.Stats.ScannedIndex += int64(len(docs))
		if len(docs) == 0 {
			// exhausted this disjunct: advance to the next one, or the
			// next upstream row if disjuncts are exhausted too.
			ok, err := ir.advanceDisjunct(ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				ir.curInputRow++
			}
			continue
		}
		for _, d := range docs {
			out.Set(n, ir.OutReg, value.NewShaped([]byte(d.Key), d.Collection))
			out.SetCollection(ir.OutReg, d.Collection)
			n++
			if n >= atMost {
				break
			}
		}
	}
	if n == 0 {
		return nil, nil
	}
	out.Shrink(n)
	out.ClearRegisters(ir.ClearRegs)
	return out, nil
}

func (ir *IndexRange) GetSome(ctx context.Context, atLeast, atMost int) (*value.Block, error) {
	return ir.emit(ctx, atMost)
}

func (ir *IndexRange) SkipSome(ctx context.Context, atLeast, atMost int) (int, error) {
	blk, err := ir.emit(ctx, atMost)
	if err != nil || blk == nil {
		return 0, err
	}
	n := blk.NumRows()
	blk.Destroy()
	return n, nil
}

func (ir *IndexRange) Skip(ctx context.Context, n int) (bool, error) { return ir.Base.Skip(ctx, ir, n) }
