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

// Package value implements the tagged value union and the column-oriented
// row batch ("Block") that flows between pipeline operators.
package value

import (
	"fmt"

	"github.com/arangodb/aqlengine/collate"
)

// Tag identifies which variant of Value is populated.
type Tag uint8

const (
	// Empty marks an absent register slot.
	Empty Tag = iota
	// JSON is an owned, materialized document/value tree.
	JSON
	// Shaped is an immutable pointer into storage, interpreted
	// with the help of an associated Collection.
	Shaped
	// DocVec holds a sequence of child Blocks, produced by a subquery.
	DocVec
	// Range is a half-open, lazily expanded integer interval.
	Range
)

func (t Tag) String() string {
	switch t {
	case Empty:
		return "empty"
	case JSON:
		return "json"
	case Shaped:
		return "shaped"
	case DocVec:
		return "docvec"
	case Range:
		return "range"
	default:
		return "invalid"
	}
}

// Collection is the minimal handle a Shaped value needs in order to be
// interpreted; the real implementation lives in the (out-of-scope) storage
// layer and is supplied by the caller.
type Collection interface {
	CollectionName() string
}

// Resolver turns a Shaped value's opaque document pointer into a JSON-ish
// Go value. It stands in for the out-of-scope transaction/storage layer
// (spec.md §1): the core only needs this one method from it.
type Resolver interface {
	ResolveShaped(doc []byte, coll Collection) (any, error)
}

// DocVecEntry is one child block of a DocVec value, carrying its own
// register layout (a DocVec's rows may have a different arity than its
// parent row).
type DocVecEntry struct {
	Block  *Block
	NumRegs int
}

// Value is the tagged union described in spec.md §3.
type Value struct {
	Tag Tag

	json any // valid when Tag == JSON

	shapedDoc  []byte     // opaque document pointer, valid when Tag == Shaped
	shapedColl Collection // valid when Tag == Shaped

	docVec []DocVecEntry // valid when Tag == DocVec

	rangeLo, rangeHi int64 // valid when Tag == Range, half-open [lo, hi)
}

// NewEmpty returns the Empty value.
func NewEmpty() Value { return Value{Tag: Empty} }

// NewJSON wraps an already-owned JSON-ish Go value (map[string]any,
// []any, string, float64, bool, nil, json.Number, ...).
func NewJSON(v any) Value { return Value{Tag: JSON, json: v} }

// NewShaped wraps a storage document pointer together with the collection
// needed to interpret it.
func NewShaped(doc []byte, coll Collection) Value {
	return Value{Tag: Shaped, shapedDoc: doc, shapedColl: coll}
}

// NewDocVec wraps the list of child blocks produced by a subquery.
func NewDocVec(blocks []DocVecEntry) Value {
	return Value{Tag: DocVec, docVec: blocks}
}

// NewRange wraps a half-open integer interval [lo, hi).
func NewRange(lo, hi int64) Value {
	return Value{Tag: Range, rangeLo: lo, rangeHi: hi}
}

// IsEmpty reports whether v is the Empty variant.
func (v Value) IsEmpty() bool { return v.Tag == Empty }

// JSONValue returns the wrapped Go value; valid only when Tag == JSON.
func (v Value) JSONValue() any { return v.json }

// Shaped returns the document pointer and collection; valid only when
// Tag == Shaped.
func (v Value) ShapedParts() ([]byte, Collection) { return v.shapedDoc, v.shapedColl }

// DocVecEntries returns the child blocks; valid only when Tag == DocVec.
func (v Value) DocVecEntries() []DocVecEntry { return v.docVec }

// RangeBounds returns [lo, hi); valid only when Tag == Range.
func (v Value) RangeBounds() (int64, int64) { return v.rangeLo, v.rangeHi }

// RangeLen returns hi-lo for a Range value.
func (v Value) RangeLen() int64 { return v.rangeHi - v.rangeLo }

// IsArrayish reports whether v can be expanded row-wise by EnumerateList:
// JSON arrays and Range values qualify; Shaped/Empty/scalar JSON do not.
func (v Value) IsArrayish() bool {
	switch v.Tag {
	case Range:
		return true
	case JSON:
		_, ok := v.json.([]any)
		return ok
	default:
		return false
	}
}

// Elements expands an arrayish value into per-row Values, used by
// EnumerateList. It is the caller's responsibility to have checked
// IsArrayish first.
func (v Value) Elements() []Value {
	switch v.Tag {
	case Range:
		n := v.rangeHi - v.rangeLo
		if n < 0 {
			n = 0
		}
		out := make([]Value, n)
		for i := range out {
			out[i] = NewJSON(float64(v.rangeLo + int64(i)))
		}
		return out
	case JSON:
		arr, _ := v.json.([]any)
		out := make([]Value, len(arr))
		for i, e := range arr {
			out[i] = NewJSON(cloneJSON(e))
		}
		return out
	default:
		return nil
	}
}

// Clone performs a deep copy: JSON trees are copied, DocVec children are
// cloned recursively, Shaped/Range are immutable and copy trivially.
func (v Value) Clone() Value {
	switch v.Tag {
	case JSON:
		return NewJSON(cloneJSON(v.json))
	case DocVec:
		out := make([]DocVecEntry, len(v.docVec))
		for i, e := range v.docVec {
			out[i] = DocVecEntry{Block: e.Block.Clone(), NumRegs: e.NumRegs}
		}
		return NewDocVec(out)
	default:
		return v
	}
}

// Destroy releases any memory owned by v. In this Go reimplementation the
// garbage collector reclaims JSON trees; Destroy exists so that operators
// written in the teacher's RAII style have an explicit release point to call
// (in particular for DocVec, where it recursively shuts down child blocks'
// collection references) and so future non-GC-managed Value variants (e.g.
// pooled buffers) have a natural home.
func (v Value) Destroy() {
	if v.Tag == DocVec {
		for _, e := range v.docVec {
			e.Block.destroyValues()
		}
	}
}

// ToJSON materializes v as a plain JSON-ish Go value, resolving Shaped
// documents through r.
func (v Value) ToJSON(r Resolver) (any, error) {
	switch v.Tag {
	case Empty:
		return nil, nil
	case JSON:
		return v.json, nil
	case Shaped:
		if r == nil {
			return nil, fmt.Errorf("value: cannot resolve shaped value without a Resolver")
		}
		return r.ResolveShaped(v.shapedDoc, v.shapedColl)
	case Range:
		lo, hi := v.rangeLo, v.rangeHi
		if hi < lo {
			hi = lo
		}
		out := make([]any, 0, hi-lo)
		for i := lo; i < hi; i++ {
			out = append(out, float64(i))
		}
		return out, nil
	case DocVec:
		out := make([]any, 0, len(v.docVec))
		for _, e := range v.docVec {
			rows, err := e.Block.ToJSONRows(r)
			if err != nil {
				return nil, err
			}
			out = append(out, rows)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value: unknown tag %d", v.Tag)
	}
}

// ToString renders v for diagnostics; it never fails.
func (v Value) ToString() string {
	switch v.Tag {
	case Empty:
		return "<empty>"
	case JSON:
		return fmt.Sprintf("%v", v.json)
	case Shaped:
		name := "<nil>"
		if v.shapedColl != nil {
			name = v.shapedColl.CollectionName()
		}
		return fmt.Sprintf("<shaped in %s>", name)
	case Range:
		return fmt.Sprintf("%d..%d", v.rangeLo, v.rangeHi)
	case DocVec:
		return fmt.Sprintf("<docvec len=%d>", len(v.docVec))
	default:
		return "<invalid>"
	}
}

// Compare is the three-way order defined in spec.md §4.1: JSON values follow
// a typed total order (null < bool < number < string < array < object),
// Shaped is projected to JSON on demand, Range participates as an array of
// integers. String comparison is locale-aware and stable via the collate
// package.
func Compare(r Resolver, a Value, b Value) (int, error) {
	aj, err := a.ToJSON(r)
	if err != nil {
		return 0, err
	}
	bj, err := b.ToJSON(r)
	if err != nil {
		return 0, err
	}
	return compareJSON(aj, bj), nil
}

func jsonOrderRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, int, int64:
		return 2
	case string:
		return 3
	case []any:
		return 4
	case map[string]any:
		return 5
	default:
		return 6
	}
}

// json_Number is a local alias for float64, the representation JSON numbers
// have in this package: the wire package converts json.Number to float64
// before values ever reach here.
type json_Number = float64

func compareJSON(a, b any) int {
	ra, rb := jsonOrderRank(a), jsonOrderRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case float64, int, int64:
		af, bv := toFloat(av), toFloat(b)
		switch {
		case af < bv:
			return -1
		case af > bv:
			return 1
		default:
			return 0
		}
	case string:
		return collate.Compare(av, b.(string))
	case []any:
		bv := b.([]any)
		n := len(av)
		if len(bv) < n {
			n = len(bv)
		}
		for i := 0; i < n; i++ {
			if c := compareJSON(av[i], bv[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(av) < len(bv):
			return -1
		case len(av) > len(bv):
			return 1
		default:
			return 0
		}
	case map[string]any:
		bv := b.(map[string]any)
		switch {
		case len(av) < len(bv):
			return -1
		case len(av) > len(bv):
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func cloneJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneJSON(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneJSON(vv)
		}
		return out
	default:
		return v
	}
}
